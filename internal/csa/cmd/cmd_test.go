package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"csa/internal/analysis"
	"csa/internal/config"
	"csa/internal/decompiler"
	"csa/internal/logging"
	"csa/internal/pex"
	"csa/internal/pex/pextest"
	"csa/internal/ui/colorize"
)

// quietEnv isolates a test from the caller's csa environment.
func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv(colorize.EnvNoColor, "1")
	t.Setenv(config.EnvPath, "")
	t.Setenv("CSA_LOG_TO_FILE", "")
	t.Setenv("CSA_LOG_LEVEL", "")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func samplePath(t *testing.T) string {
	t.Helper()
	return pextest.WriteFile(t, "Sample.dll", pextest.DefaultSample.Assembly().Bytes())
}

func TestInfo(t *testing.T) {
	quietEnv(t)
	path := samplePath(t)

	out, _, err := execute(t, "info", path)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	want := "--- Assembly Metadata ---\n" +
		"\n" +
		"Assembly Path: " + path + "\n" +
		"Assembly Name: Sample, Version=1.2.3.4, Culture=neutral, PublicKeyToken=null\n" +
		".NET Version:  .NETCoreApp, Version=v8.0\n" +
		"Architecture:  AnyCPU (64-bit preferred)\n" +
		"Global type:   <Module>\n" +
		"Entry point:   Sample.Program.Main\n"
	if out != want {
		t.Errorf("info output:\n%s\nwant:\n%s", out, want)
	}
}

func TestInfoMembers(t *testing.T) {
	quietEnv(t)
	path := samplePath(t)

	out, _, err := execute(t, "info", path, "--fields", "--props", "--methods")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	_, tree, ok := strings.Cut(out, "--- Assembly Members --- \n")
	if !ok {
		t.Fatalf("no members section in:\n%s", out)
	}
	want := "<Module>:\n\n\n\n" +
		"Sample.Program:\n" +
		"\tSystem.Int32 count\n" +
		"\tSystem.String name\n" +
		"\n" +
		"\tSystem.String Name\n" +
		"\n" +
		"\tSystem.Void Main(System.String[] args)\n" +
		"\tSystem.String get_Name()\n" +
		"\n" +
		"\tSample.Program.Inner:\n" +
		"\n" +
		"\n" +
		"\t\tSystem.Void Run(System.Int32 x, System.Boolean flag)\n" +
		"\n" +
		"Sample.Box:\n" +
		"\tT value\n" +
		"\n" +
		"\n" +
		"\tT Get()\n" +
		"\n"
	if tree != want {
		t.Errorf("members:\n%q\nwant:\n%q", tree, want)
	}
}

func TestInfoMethodsOnly(t *testing.T) {
	quietEnv(t)
	out, _, err := execute(t, "info", samplePath(t), "-m")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(out, "Sample.Program:\n\tSystem.Void Main(System.String[] args)\n\tSystem.String get_Name()\n\n") {
		t.Errorf("methods-only output:\n%s", out)
	}
	if strings.Contains(out, "System.Int32 count") {
		t.Errorf("fields printed without --fields")
	}
}

func TestInfoTypesOnly(t *testing.T) {
	quietEnv(t)
	out, _, err := execute(t, "info", samplePath(t), "--types")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	_, tree, _ := strings.Cut(out, "--- Assembly Members --- \n")
	want := "<Module>:\nSample.Program:\n\tSample.Program.Inner:\nSample.Box:\n"
	if tree != want {
		t.Errorf("types:\n%q\nwant:\n%q", tree, want)
	}
}

func TestInfoJSON(t *testing.T) {
	quietEnv(t)
	out, _, err := execute(t, "info", samplePath(t), "--json", "--types", "--entry-stub")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	var r analysis.Report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if r.Framework != ".NETCoreApp,Version=v8.0" || len(r.Types) != 4 || len(r.EntryStub) == 0 {
		t.Errorf("report = %+v", r)
	}
}

func TestInfoExportsAndStub(t *testing.T) {
	quietEnv(t)
	out, _, err := execute(t, "info", samplePath(t), "--exports", "--entry-stub")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(out, "--- Native Exports ---\n(none)\n") {
		t.Errorf("exports section:\n%s", out)
	}
	if !strings.Contains(out, "--- Entry Stub ---\n") || !strings.Contains(out, "jmp") {
		t.Errorf("entry stub section:\n%s", out)
	}
}

func TestInfoErrors(t *testing.T) {
	quietEnv(t)
	dir := t.TempDir()

	_, _, err := execute(t, "info", filepath.Join(dir, "missing.dll"))
	if !errors.Is(err, pex.ErrFileNotFound) {
		t.Errorf("missing file: err = %v", err)
	}

	bad := pextest.WriteFile(t, "bad.dll", []byte("MZ but nothing else"))
	_, _, err = execute(t, "info", bad)
	if !analysis.IsFormatError(err) || !errors.Is(err, pex.ErrBadImageFormat) {
		t.Errorf("bad image: err = %v", err)
	}
	if !strings.Contains(err.Error(), "target file is not a valid .NET Assembly") {
		t.Errorf("bad image message = %q", err)
	}
}

func TestUsageErrors(t *testing.T) {
	quietEnv(t)
	tests := [][]string{
		{"info"},
		{"info", "a.dll", "b.dll"},
		{"info", "a.dll", "--bogus"},
		{"info", "a.dll", "--json", "--tui"},
		{"decompile"},
	}
	for _, args := range tests {
		out, errOut, err := execute(t, args...)
		if err == nil {
			t.Errorf("%v: no error", args)
			continue
		}
		if !strings.Contains(out+errOut, "Usage:") {
			t.Errorf("%v: usage not printed; stderr = %q", args, errOut)
		}
	}
}

func TestRuntimeErrorsSkipUsage(t *testing.T) {
	quietEnv(t)
	out, errOut, err := execute(t, "info", filepath.Join(t.TempDir(), "missing.dll"))
	if err == nil {
		t.Fatal("no error")
	}
	if strings.Contains(out+errOut, "Usage:") {
		t.Errorf("usage printed for a runtime error")
	}
}

func TestInfoTUIWithoutTerminal(t *testing.T) {
	quietEnv(t)
	_, _, err := execute(t, "info", samplePath(t), "--tui")
	if !errors.Is(err, errTUINeedsTerminal) {
		t.Errorf("err = %v, want errTUINeedsTerminal", err)
	}
}

func TestDecompileToolNotFound(t *testing.T) {
	quietEnv(t)
	outDir := filepath.Join(t.TempDir(), "out")
	out, _, err := execute(t, "decompile", samplePath(t), "-o", outDir, "--decompiler", "csa-missing-ilspycmd")
	if !errors.Is(err, decompiler.ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
	if out != "Decompiling Sample into "+outDir+"\n" {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(outDir); err != nil {
		t.Errorf("output directory not created: %v", err)
	}
}

type recordingBackend struct {
	job decompiler.Job
}

func (b *recordingBackend) Name() string { return "recording" }

func (b *recordingBackend) Decompile(_ context.Context, job decompiler.Job, progress func(decompiler.Progress)) error {
	b.job = job
	progress(decompiler.Progress{Title: decompiler.PhaseWriting, UnitsCompleted: 1, TotalUnits: 1})
	return nil
}

func TestRunDecompileUsesConfig(t *testing.T) {
	root := t.TempDir()
	a := &app{
		cfg:    &config.Config{OutputRoot: root},
		logger: logging.NewLoggerWithWriter(io.Discard, false),
	}
	b := &recordingBackend{}
	var out bytes.Buffer
	if err := runDecompile(context.Background(), a, DecompileOptions{Path: samplePath(t), Parallelism: 2}, b, &out); err != nil {
		t.Fatalf("runDecompile: %v", err)
	}
	if want := filepath.Join(root, "Sample"); b.job.OutputDir != want {
		t.Errorf("OutputDir = %q, want %q", b.job.OutputDir, want)
	}
	if b.job.Parallelism != 2 {
		t.Errorf("Parallelism = %d", b.job.Parallelism)
	}
	if !strings.HasSuffix(out.String(), "\n-- Writing project --\n0%  Completed\n100% Completed\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConfigFlag(t *testing.T) {
	quietEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "csa.json")
	if err := os.WriteFile(cfgPath, []byte(`{"decompiler": "csa-configured-tool"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := execute(t, "--config", cfgPath, "decompile", samplePath(t), "-o", t.TempDir())
	if !errors.Is(err, decompiler.ErrToolNotFound) || !strings.Contains(err.Error(), "csa-configured-tool") {
		t.Errorf("err = %v, want the configured tool to be missing", err)
	}

	_, _, err = execute(t, "--config", filepath.Join(t.TempDir(), "absent.json"), "info", samplePath(t))
	if err == nil {
		t.Errorf("missing config file accepted")
	}
}

func TestSchemaCommand(t *testing.T) {
	quietEnv(t)
	out, _, err := execute(t, "schema")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !strings.Contains(out, `"decompiler"`) {
		t.Errorf("schema output = %s", out)
	}
}

func TestInfoOptionsAnalysis(t *testing.T) {
	tests := []struct {
		in   InfoOptions
		want analysis.Options
	}{
		{InfoOptions{}, analysis.Options{}},
		{InfoOptions{Fields: true}, analysis.Options{Types: true, Fields: true}},
		{InfoOptions{Properties: true}, analysis.Options{Types: true, Properties: true}},
		{InfoOptions{Methods: true, Exports: true}, analysis.Options{Types: true, Methods: true, Exports: true}},
		{InfoOptions{Types: true, EntryStub: true}, analysis.Options{Types: true, EntryStub: true}},
	}
	for _, tt := range tests {
		if got := tt.in.Analysis(); got != tt.want {
			t.Errorf("%+v.Analysis() = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerClosedAfterFailedCommand(t *testing.T) {
	quietEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "csa.json")
	if err := os.WriteFile(cfgPath, []byte(`{"logFile": "csa.log"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	a := newApp()
	root := a.command()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", cfgPath, "info", filepath.Join(dir, "missing.dll")})
	if err := a.execute(root.Execute); err == nil {
		t.Fatal("info on a missing file succeeded")
	}
	if err := a.logger.Close(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("second Close = %v, want os.ErrClosed after the failed run", err)
	}
}

func TestColorDecisionLeavesEnvironment(t *testing.T) {
	quietEnv(t)
	t.Setenv(colorize.EnvNoColor, "")
	out, _, err := execute(t, "info", samplePath(t), "-m")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("piped output is coloured:\n%q", out)
	}
	if v := os.Getenv(colorize.EnvNoColor); v != "" {
		t.Errorf("%s = %q after the run, want it untouched", colorize.EnvNoColor, v)
	}
}

func TestRunInfoLogsDemangleStats(t *testing.T) {
	quietEnv(t)
	img := pextest.DefaultSample.Assembly()
	img.DLLName = "Sample.dll"
	img.Exports = []pextest.Export{{Name: "_Z3addii"}}
	path := pextest.WriteFile(t, "Mixed.dll", img.Bytes())

	var logs, out bytes.Buffer
	a := &app{cfg: &config.Config{}, logger: logging.NewLoggerWithWriter(&logs, true)}
	if err := runInfo(context.Background(), a, InfoOptions{Path: path, Exports: true}, &out); err != nil {
		t.Fatalf("runInfo: %v", err)
	}
	if !strings.Contains(logs.String(), "Demangled exports") {
		t.Errorf("debug log lacks demangle stats:\n%s", logs.String())
	}
}
