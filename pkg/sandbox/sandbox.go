// Package sandbox runs model-authored code in isolated per-thread
// containers.
package sandbox

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no sandbox backend is configured.
var ErrUnavailable = errors.New("sandbox unavailable")

// Result represents the output of a sandbox execution.
type Result struct {
	// Output is the combined stdout and stderr (if not split).
	Output string `json:"output,omitempty"`
	// Stdout is the standard output (if split).
	Stdout string `json:"stdout,omitempty"`
	// Stderr is the standard error (if split).
	Stderr string `json:"stderr,omitempty"`
}

// Text returns the output as the model should see it.
func (r *Result) Text() string {
	if r.Output != "" {
		return r.Output
	}
	out := r.Stdout
	if r.Stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += r.Stderr
	}
	return out
}

// ThreadLister lists thread IDs for sandbox reconciliation. This is a minimal
// interface to avoid importing the store package.
type ThreadLister interface {
	ListThreadIDs(ctx context.Context) ([]string, error)
}

// Manager defines the interface for managing sandboxes. Each thread gets its
// own sandbox, started lazily on first use.
type Manager interface {
	// RunCell executes a code cell within the sandbox for the given thread,
	// starting the sandbox if it is not running.
	RunCell(ctx context.Context, threadID, code string) (*Result, error)

	// Status returns one of "running", "stopped" or "unknown".
	Status(ctx context.Context, threadID string) (string, error)

	// Stop terminates the sandbox for the given thread.
	Stop(ctx context.Context, threadID string) error

	// Close releases any resources held by the manager (e.g. docker client).
	Close() error
}
