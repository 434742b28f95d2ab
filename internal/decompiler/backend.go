// Package decompiler drives an external whole-project decompiler over an
// assembly and reports its progress on the console.
package decompiler

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/charmbracelet/log"
)

// ErrToolNotFound is returned when the decompiler executable is missing.
var ErrToolNotFound = errors.New("decompiler tool not found")

// Job is one decompilation request handed to a Backend.
type Job struct {
	Input     string // absolute assembly path
	OutputDir string // absolute, already created
	// Types is the number of top-level types the output should cover; it
	// is the denominator of the "Decompiling types" phase.
	Types int
	// Parallelism caps the tool's decompilation workers. ilspycmd has no
	// flag for it, so ILSpyCmd passes it as DOTNET_PROCESSOR_COUNT.
	Parallelism int
	KeepLog     bool
	Logger      *log.Logger
}

// Backend runs a decompilation. Implementations call progress from any
// goroutine; calls are serialised by the driver.
type Backend interface {
	Name() string
	Decompile(ctx context.Context, job Job, progress func(Progress)) error
}

// ExitError wraps a failed decompiler process.
type ExitError struct {
	Tool     string
	ExitCode int
	Err      error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d: %v", e.Tool, e.ExitCode, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// LookTool resolves a decompiler executable name or path.
func LookTool(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolNotFound, name, err)
	}
	return path, nil
}
