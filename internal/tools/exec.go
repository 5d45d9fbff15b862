// Package tools runs the external bioinformatics programs the pipeline
// depends on and parses the artifacts they leave behind.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrToolFailed is returned when a tool exits non-zero or cannot start.
	ErrToolFailed = errors.New("external tool failed")
	// ErrTimeout is returned when a tool exceeds its deadline.
	ErrTimeout = errors.New("external tool timed out")
	// ErrMissingOutput is returned when a tool exits cleanly but its output
	// file is absent.
	ErrMissingOutput = errors.New("external tool produced no output")
)

const (
	stderrLimit = 4 << 10
	// waitDelay bounds how long a killed tool's children may hold its pipes.
	waitDelay = 2 * time.Second
)

// Invocation is one external program call.
type Invocation struct {
	// Tool is the logical name used in logs and metrics.
	Tool string
	Bin  string
	Args []string
	// Stdout, when set, receives the program's standard output.
	Stdout string
	Dir    string
}

func (inv Invocation) String() string {
	return strings.TrimSpace(inv.Bin + " " + strings.Join(inv.Args, " "))
}

// Runner executes invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// ExecRunner runs invocations as child processes.
type ExecRunner struct {
	// Timeout bounds a single invocation. Zero disables the bound.
	Timeout time.Duration
}

// Run starts the program and waits for it.
func (r ExecRunner) Run(ctx context.Context, inv Invocation) error {
	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, inv.Bin, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.WaitDelay = waitDelay
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	if inv.Stdout != "" {
		f, err := os.Create(inv.Stdout)
		if err != nil {
			return fmt.Errorf("%s: opening stdout file: %w", inv.Tool, err)
		}
		defer f.Close()
		cmd.Stdout = f
	}

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return &ToolError{Tool: inv.Tool, Command: inv.String(), Err: ErrTimeout, Cause: err}
		}
		return &ToolError{Tool: inv.Tool, Command: inv.String(), Err: ErrToolFailed, Cause: err, Stderr: stderr.String()}
	}
	return nil
}

// ToolError describes a failed invocation.
type ToolError struct {
	Tool    string
	Command string
	Err     error
	Cause   error
	Stderr  string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Err)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += " (stderr: " + s + ")"
	}
	return msg
}

func (e *ToolError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
