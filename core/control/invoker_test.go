package control

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sflip/radiopi/core/errors"
	"github.com/sflip/radiopi/internal/audit"
)

// fakeCommand re-executes the test binary as the control program.
func fakeCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
}

func useFakeCommand(t *testing.T) {
	t.Helper()
	orig := commandContext
	commandContext = fakeCommand
	t.Cleanup(func() { commandContext = orig })
}

// TestHelperProcess is not a real test. It stands in for the control
// program when the test binary is re-executed by fakeCommand.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: radio <subcommand>")
		os.Exit(2)
	}
	sub, rest := args[2], args[3:]

	switch sub {
	case "status":
		fmt.Println("Status: off")
		fmt.Println("Station: BBC Radio 4  ")
		fmt.Println("Alarm: enabled")
		fmt.Println("Alarm time: 07:30")
	case "list":
		fmt.Println("BBC Radio 4")
		fmt.Println("")
		fmt.Println("Jazz FM")
	case "fail":
		fmt.Println("first line")
		fmt.Fprintln(os.Stderr, "second line")
		os.Exit(3)
	case "hang":
		time.Sleep(30 * time.Second)
	default:
		fmt.Print(sub)
		for _, a := range rest {
			fmt.Print("|" + a)
		}
		fmt.Println()
	}
	os.Exit(0)
}

type recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recorder) Record(e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func TestNewInvoker(t *testing.T) {
	inv := NewInvoker("/usr/local/bin/radio", nil)
	if inv.Program != "/usr/local/bin/radio" {
		t.Errorf("expected Program /usr/local/bin/radio, got %s", inv.Program)
	}
	if inv.Timeout != DefaultTimeout {
		t.Errorf("expected Timeout %v, got %v", DefaultTimeout, inv.Timeout)
	}
}

func TestInvokeSuccess(t *testing.T) {
	useFakeCommand(t)
	rec := &recorder{}
	inv := NewInvoker("radio", rec)

	result, err := inv.Invoke(context.Background(), "status")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success, got exit code %d", result.ExitCode)
	}
	want := []string{"Status: off", "Station: BBC Radio 4", "Alarm: enabled", "Alarm time: 07:30"}
	if !reflect.DeepEqual(result.Lines, want) {
		t.Errorf("Lines = %q, want %q", result.Lines, want)
	}
	if result.Err() != nil {
		t.Errorf("Err() = %v, want nil", result.Err())
	}

	if len(rec.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(rec.entries))
	}
	entry := rec.entries[0]
	if entry.Program != "radio" || entry.ExitCode != 0 || len(entry.Lines) != 4 {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
}

func TestInvokeArgumentVector(t *testing.T) {
	useFakeCommand(t)
	inv := NewInvoker("radio", nil)

	result, err := inv.Invoke(context.Background(), "start", "BBC One; rm -rf /", "--non-interactive")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	want := []string{"start|BBC One; rm -rf /|--non-interactive"}
	if !reflect.DeepEqual(result.Lines, want) {
		t.Errorf("Lines = %q, want %q", result.Lines, want)
	}
}

func TestInvokeNonZeroExit(t *testing.T) {
	useFakeCommand(t)
	rec := &recorder{}
	inv := NewInvoker("radio", rec)

	result, err := inv.Invoke(context.Background(), "fail")
	if err != nil {
		t.Fatalf("non-zero exit must not be an Invoke error, got %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if len(result.Lines) != 2 {
		t.Fatalf("expected merged stdout and stderr, got %q", result.Lines)
	}

	var invErr *errors.InvocationError
	if !errors.As(result.Err(), &invErr) {
		t.Fatalf("Err() = %v, want *InvocationError", result.Err())
	}
	if invErr.ExitCode != 3 {
		t.Errorf("InvocationError.ExitCode = %d, want 3", invErr.ExitCode)
	}
	if len(rec.entries) != 1 || rec.entries[0].ExitCode != 3 {
		t.Errorf("expected audit entry with exit code 3, got %+v", rec.entries)
	}
}

func TestInvokeTimeout(t *testing.T) {
	useFakeCommand(t)
	rec := &recorder{}
	inv := NewInvoker("radio", rec)
	inv.Timeout = 200 * time.Millisecond

	start := time.Now()
	result, err := inv.Invoke(context.Background(), "hang")
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Invoke took %v, expected it to be killed", elapsed)
	}

	var timeoutErr *errors.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}
	if !errors.Is(err, errors.ErrTimeout) {
		t.Error("expected ErrTimeout")
	}
	if result == nil || result.ExitCode != -1 {
		t.Errorf("expected result with exit code -1, got %+v", result)
	}
	if len(rec.entries) != 1 || rec.entries[0].Err == "" {
		t.Errorf("expected audit entry carrying the timeout, got %+v", rec.entries)
	}
}

func TestInvokeCancelled(t *testing.T) {
	useFakeCommand(t)
	inv := NewInvoker("radio", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := inv.Invoke(ctx, "status")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if result.Succeeded() {
		t.Error("cancelled invocation must not succeed")
	}
}

func TestInvokeMissingProgram(t *testing.T) {
	inv := NewInvoker("/nonexistent/radiopi-control", nil)

	result, err := inv.Invoke(context.Background(), "status")
	var ioErr *errors.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("error = %v, want *IOError", err)
	}
	if ioErr.Operation != "exec" {
		t.Errorf("Operation = %q, want exec", ioErr.Operation)
	}
	if result == nil || result.ExitCode != -1 {
		t.Errorf("expected result with exit code -1, got %+v", result)
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"single", "ok\n", []string{"ok"}},
		{"no trailing newline", "a\nb", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"trailing spaces", "a  \nb\t\n", []string{"a", "b"}},
		{"inner blank", "a\n\nb\n", []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitLines(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitLines(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
