// Package control bridges the web frontend and the external radio control
// program: it runs the program, parses what it reports and maps form
// submissions onto exactly one invocation each.
package control

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/sflip/radiopi/core/errors"
	"github.com/sflip/radiopi/internal/audit"
	"github.com/sflip/radiopi/internal/logging"
)

// DefaultTimeout bounds a single control program run.
const DefaultTimeout = 10 * time.Second

// waitDelay limits how long Wait blocks on output pipes held open by
// grandchildren after the program itself has exited or been killed.
const waitDelay = time.Second

// Injectable for testing.
var commandContext = exec.CommandContext

// Result is the captured outcome of one control program run.
type Result struct {
	Args     []string // Arguments after the program path
	ExitCode int      // -1 if the program did not exit normally
	Lines    []string // Merged stdout and stderr, one entry per line
	Duration time.Duration
}

// Succeeded reports whether the program exited with code 0.
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// Err returns an InvocationError for a failed run, nil otherwise.
func (r *Result) Err() error {
	if r == nil || r.Succeeded() {
		return nil
	}
	return &errors.InvocationError{Args: r.Args, ExitCode: r.ExitCode, Lines: r.Lines}
}

// Runner runs the control program with the given arguments.
type Runner interface {
	Invoke(ctx context.Context, args ...string) (*Result, error)
}

// Recorder receives one audit entry per invocation.
type Recorder interface {
	Record(entry audit.Entry) error
}

// Invoker runs the control program as a child process.
type Invoker struct {
	Program string        // Path to the control program
	Timeout time.Duration // Zero disables the deadline
	Audit   Recorder      // Optional
}

// NewInvoker creates an Invoker with the default timeout.
func NewInvoker(program string, rec Recorder) *Invoker {
	return &Invoker{
		Program: program,
		Timeout: DefaultTimeout,
		Audit:   rec,
	}
}

// Invoke runs the program synchronously with args passed as a discrete
// argument vector. A non-zero exit code is reported through the Result, not
// the error. The error is set only when the program could not be started,
// timed out or was cancelled; a Result is returned in every case.
func (inv *Invoker) Invoke(ctx context.Context, args ...string) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	}
	defer cancel()

	cmd := commandContext(runCtx, inv.Program, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()

	result := &Result{
		Args:     append([]string(nil), args...),
		Lines:    splitLines(output.String()),
		Duration: time.Since(start),
	}

	var err error
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		result.ExitCode = -1
		err = errors.Wrap(ctx.Err(), "invocation cancelled")
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.ExitCode = -1
		err = &errors.TimeoutError{Args: result.Args, Timeout: inv.Timeout}
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
		err = errors.NewIO("exec", inv.Program, runErr)
	}

	inv.record(result, err)
	logging.ControlInvocation(ctx, inv.Program, result.Args, result.ExitCode, result.Duration, err)
	return result, err
}

func (inv *Invoker) record(result *Result, err error) {
	if inv.Audit == nil {
		return
	}
	entry := audit.Entry{
		Program:  inv.Program,
		Args:     result.Args,
		ExitCode: result.ExitCode,
		Lines:    result.Lines,
		Duration: result.Duration,
	}
	if err != nil {
		entry.Err = err.Error()
	}
	if recErr := inv.Audit.Record(entry); recErr != nil {
		logging.Warn("audit record failed", "program", inv.Program, "error", recErr)
	}
}

// splitLines splits captured output into lines without their trailing
// whitespace. A final newline does not produce an empty last line.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return lines
}
