// Package audit appends one line per control program invocation to a
// rotated log file, optionally mirrored into SQLite for later queries.
package audit

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sflip/radiopi/core/errors"
)

// TimestampLayout prefixes every audit line, e.g. "[14-Oct-2026 07:30:00]".
const TimestampLayout = "[02-Jan-2006 15:04:05]"

// DefaultPath is the audit file used when none is configured.
const DefaultPath = "/tmp/radiopi_frontend.log"

// Entry describes one control program invocation.
type Entry struct {
	Time     time.Time     `json:"time"`
	Program  string        `json:"program"`
	Args     []string      `json:"args"`
	ExitCode int           `json:"exit_code"`
	Lines    []string      `json:"output"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Format renders the entry as a single newline-terminated audit line.
// Arguments and output lines are quoted so embedded newlines cannot split
// an entry.
func (e Entry) Format() string {
	var b strings.Builder
	b.WriteString(e.Time.Format(TimestampLayout))
	b.WriteString(" exec ")
	b.WriteString(quoteAll(append([]string{e.Program}, e.Args...)))
	fmt.Fprintf(&b, " exit=%d duration=%s output=[%s]", e.ExitCode, e.Duration.Round(time.Millisecond), quoteAll(e.Lines))
	if e.Err != "" {
		fmt.Fprintf(&b, " error=%q", e.Err)
	}
	b.WriteByte('\n')
	return b.String()
}

func quoteAll(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, " ")
}

// Config controls where audit entries go.
type Config struct {
	Path       string // Audit file; empty discards file output
	MaxSizeMB  int    // Rotate after this size
	MaxBackups int    // Rotated files to keep
	MaxAgeDays int    // Days to keep rotated files
	Compress   bool   // Gzip rotated files
	DBPath     string // Optional SQLite mirror
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	return Config{
		Path:       DefaultPath,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// Log is the process-wide audit writer. It is safe for concurrent use;
// each entry is written with a single Write call under the lock.
type Log struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	mirror *Mirror
	now    func() time.Time
}

// Open creates a Log from cfg. The caller must Close it.
func Open(cfg Config) (*Log, error) {
	l := &Log{w: io.Discard, now: time.Now}
	if cfg.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		l.w, l.closer = rotator, rotator
	}
	if cfg.DBPath != "" {
		mirror, err := OpenMirror(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		l.mirror = mirror
	}
	return l, nil
}

// New creates a Log writing to w without rotation or mirror.
func New(w io.Writer) *Log {
	return &Log{w: w, now: time.Now}
}

// Record appends entry, stamping it with the current time if unset.
func (l *Log) Record(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Time.IsZero() {
		entry.Time = l.now()
	}
	var errs []error
	if _, err := io.WriteString(l.w, entry.Format()); err != nil {
		errs = append(errs, errors.NewIO("write", "audit log", err))
	}
	if l.mirror != nil {
		if err := l.mirror.Insert(entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the audit file and mirror.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.closer != nil {
		errs = append(errs, l.closer.Close())
		l.closer = nil
	}
	if l.mirror != nil {
		errs = append(errs, l.mirror.Close())
		l.mirror = nil
	}
	l.w = io.Discard
	return errors.Join(errs...)
}
