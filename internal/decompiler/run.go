package decompiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"csa/internal/climeta"
	"csa/internal/pex"
)

// Options configures one decompile run.
type Options struct {
	Input       string
	OutputDir   string // defaults to OutputRoot joined with the assembly's simple name
	OutputRoot  string // defaults to the current directory
	Parallelism int    // <= 0 selects DefaultParallelism
	KeepLog     bool
}

// DefaultParallelism leaves one core to the rest of the system.
func DefaultParallelism() int {
	return max(runtime.NumCPU()-1, 1)
}

// Run validates the input assembly, prepares the output directory and
// hands the job to backend, printing its progress to out.
//
// A missing input keeps pex.ErrFileNotFound. An unreadable PE image or
// metadata is reported as "target file is not a valid .NET Assembly".
// Errors from the backend itself are returned unchanged.
func Run(ctx context.Context, opts Options, backend Backend, out io.Writer, lg *log.Logger) error {
	if lg == nil {
		lg = log.Default()
	}

	input, err := filepath.Abs(opts.Input)
	if err != nil {
		return err
	}
	name, types, err := inspectInput(input)
	if err != nil {
		return err
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = filepath.Join(opts.OutputRoot, name)
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	par := opts.Parallelism
	if par <= 0 {
		par = DefaultParallelism()
	}

	fmt.Fprintf(out, "Decompiling %s into %s\n", name, dir)
	lg.Debug("Starting decompiler", "backend", backend.Name(), "types", types, "parallelism", par)

	var (
		mu sync.Mutex
		st ProgressState
	)
	report := func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		ReportProgress(out, &st, p)
	}

	return backend.Decompile(ctx, Job{
		Input:       input,
		OutputDir:   dir,
		Types:       types,
		Parallelism: par,
		KeepLog:     opts.KeepLog,
		Logger:      lg,
	}, report)
}

// inspectInput returns the assembly's simple name and its number of
// top-level types.
func inspectInput(path string) (string, int, error) {
	im, err := pex.Open(path)
	if err != nil {
		return "", 0, invalidAssembly(err)
	}
	defer im.Close()

	raw, err := im.Metadata()
	if err != nil {
		return "", 0, invalidAssembly(err)
	}
	md, err := climeta.Parse(raw)
	if err != nil {
		return "", 0, invalidAssembly(err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if md.Assembly != nil {
		if n := pathElement(md.Assembly.Name); n != "" {
			name = n
		}
	}
	return name, TopLevelTypes(md), nil
}

// pathElement reduces a metadata name to a single path element so the
// default output directory stays under the output root. It returns "" when
// nothing usable is left.
func pathElement(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimRight(name, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	switch name {
	case "", ".", "..":
		return ""
	}
	return name
}

func invalidAssembly(err error) error {
	if errors.Is(err, pex.ErrFileNotFound) {
		return err
	}
	return fmt.Errorf("target file is not a valid .NET Assembly: %w", err)
}

// TopLevelTypes counts the non-nested types other than <Module>.
func TopLevelTypes(md *climeta.Metadata) int {
	n := 0
	for i, td := range md.TypeDefs {
		row := uint32(i + 1)
		if td.Name == "<Module>" || md.EnclosingType(row) != 0 {
			continue
		}
		n++
	}
	return n
}
