// Package execkit spawns the child process for a single task (spec.md
// §4.1). It is pure: no persistence, no retry logic, no scheduler
// interaction, just argv/shell in and ExecutionResult out.
package execkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/delacruz/cliflow-go/internal/orcherr"
)

// OutputCap bounds how much combined stdout/stderr a single execution
// retains; beyond this the captured output is truncated and
// ExecutionResult.OutputTruncated is set.
const OutputCap = 1 << 20 // 1 MiB

// ExecutionResult is the outcome of running one command.
type ExecutionResult struct {
	Success         bool
	ExitCode        int
	Output          string
	OutputTruncated bool
	ErrorMessage    string
}

// Executor runs shell commands with a per-call timeout and a capped
// output buffer. It holds no state and is safe for concurrent use.
type Executor struct{}

// New returns a ready-to-use Executor.
func New() *Executor {
	return &Executor{}
}

// Run spawns command under the platform shell in workingDir, waits up to
// timeout, and classifies the outcome. A timeout forcibly kills the child
// and reports success=false with a timeout error kind; a non-zero exit
// preserves the captured output; an invocation failure (binary missing,
// permission denied) is reported under a distinct kind so callers can
// tell "ran and failed" apart from "never ran".
func (e *Executor) Run(ctx context.Context, command, workingDir string, timeout time.Duration) (ExecutionResult, error) {
	if timeout <= 0 {
		timeout = time.Hour
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if workingDir != "" {
		cmd.Dir = workingDir
	}

	buf := &cappedBuffer{limit: OutputCap}
	cmd.Stdout = buf
	cmd.Stderr = buf

	runErr := cmd.Run()
	output := buf.String()
	truncated := buf.truncated

	if runErr == nil {
		return ExecutionResult{
			Success:         true,
			ExitCode:        0,
			Output:          output,
			OutputTruncated: truncated,
		}, nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return ExecutionResult{
			Success:         false,
			Output:          output,
			OutputTruncated: truncated,
			ErrorMessage:    "timeout",
		}, orcherr.ErrExecutionTimeout
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return ExecutionResult{
			Success:         false,
			ExitCode:        exitErr.ExitCode(),
			Output:          output,
			OutputTruncated: truncated,
			ErrorMessage:    runErr.Error(),
		}, orcherr.ErrExecutionNonZeroExit
	}

	return ExecutionResult{
		Success:         false,
		Output:          output,
		OutputTruncated: truncated,
		ErrorMessage:    fmt.Sprintf("could not invoke command: %v", runErr),
	}, orcherr.ErrExecutionInvocation
}

// truncationMarker is appended to a capped buffer's output once it has
// dropped bytes past its limit (spec.md §9's output-cap open question).
const truncationMarker = "...[truncated]"

// cappedBuffer is an io.Writer that drops bytes past limit, recording that
// truncation occurred so String can append truncationMarker.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	remaining := c.limit - c.buf.Len()
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		c.buf.Write(p[:remaining])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + truncationMarker
	}
	return c.buf.String()
}
