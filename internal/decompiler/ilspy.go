package decompiler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nxadm/tail"
)

// Phase titles reported by the ILSpy backend.
const (
	PhaseDecompiling = "Decompiling types"
	PhaseWriting     = "Writing project"
)

const (
	// DefaultTool is the ILSpy command line front end.
	DefaultTool = "ilspycmd"
	// LogName is the file, inside the output directory, that receives the
	// tool's combined output.
	LogName = ".csa-decompile.log"

	// EnvProcessorCount overrides the processor count the .NET runtime
	// reports, which sizes ilspycmd's per-type worker pool.
	EnvProcessorCount = "DOTNET_PROCESSOR_COUNT"

	defaultPollInterval = 250 * time.Millisecond
)

// ILSpyCmd runs `ilspycmd -p -o <dir> --nested-directories <input>`.
// Progress is estimated from the .cs files appearing in the output tree.
type ILSpyCmd struct {
	Tool         string
	PollInterval time.Duration
}

func (b *ILSpyCmd) Name() string {
	if b.Tool == "" {
		return DefaultTool
	}
	return filepath.Base(b.Tool)
}

// Args returns the tool arguments for job.
func (b *ILSpyCmd) Args(job Job) []string {
	return []string{"-p", "-o", job.OutputDir, "--nested-directories", job.Input}
}

// Env returns the tool environment: the caller's plus the worker limit.
func (b *ILSpyCmd) Env(job Job) []string {
	env := os.Environ()
	if job.Parallelism > 0 {
		env = append(env, EnvProcessorCount+"="+strconv.Itoa(job.Parallelism))
	}
	return env
}

func (b *ILSpyCmd) Decompile(ctx context.Context, job Job, progress func(Progress)) error {
	tool := b.Tool
	if tool == "" {
		tool = DefaultTool
	}
	path, err := LookTool(tool)
	if err != nil {
		return err
	}
	lg := job.Logger
	if lg == nil {
		lg = log.Default()
	}

	logPath := filepath.Join(job.OutputDir, LogName)
	f, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("create decompiler log: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, b.Args(job)...)
	cmd.Env = b.Env(job)
	cmd.Stdout = f
	cmd.Stderr = f
	lg.Debug("Running decompiler", "cmd", strings.Join(cmd.Args, " "), "workers", job.Parallelism)

	progress(Progress{Title: PhaseDecompiling, TotalUnits: job.Types})
	if err := cmd.Start(); err != nil {
		f.Close()
		return fmt.Errorf("start %s: %w", tool, err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		followLog(logPath, lg, done)
	}()
	go func() {
		defer wg.Done()
		b.poll(job, progress, done)
	}()

	waitErr := cmd.Wait()
	close(done)
	wg.Wait()
	f.Close()

	if waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			return &ExitError{Tool: tool, ExitCode: ee.ExitCode(), Err: waitErr}
		}
		return fmt.Errorf("%s: %w", tool, waitErr)
	}

	progress(Progress{Title: PhaseDecompiling, UnitsCompleted: job.Types, TotalUnits: job.Types})
	progress(Progress{Title: PhaseWriting, UnitsCompleted: 1, TotalUnits: 1})

	if !job.KeepLog {
		if err := os.Remove(logPath); err != nil {
			lg.Debug("Cannot remove decompiler log", "path", logPath, "err", err)
		}
	}
	return nil
}

func (b *ILSpyCmd) poll(job Job, progress func(Progress), done <-chan struct{}) {
	interval := b.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n := min(CountSources(job.OutputDir), job.Types)
			if n != last {
				last = n
				progress(Progress{Title: PhaseDecompiling, UnitsCompleted: n, TotalUnits: job.Types})
			}
		}
	}
}

// followLog copies the tool's output into the debug log until done is
// closed and the file has been read to the end.
func followLog(path string, lg *log.Logger, done <-chan struct{}) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		MustExist: true,
		Poll:      true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		lg.Debug("Cannot follow decompiler log", "err", err)
		return
	}
	defer t.Cleanup()

	go func() {
		<-done
		// StopAtEOF always reports its own stop reason.
		_ = t.StopAtEOF()
	}()

	for line := range t.Lines {
		if line.Err != nil {
			continue
		}
		if text := strings.TrimSpace(line.Text); text != "" {
			lg.Debug(text, "source", "decompiler")
		}
	}
}

// CountSources counts the .cs files under dir.
func CountSources(dir string) int {
	n := 0
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".cs") {
			n++
		}
		return nil
	})
	return n
}
