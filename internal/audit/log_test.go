package audit

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

var fixedTime = time.Date(2026, time.October, 14, 7, 30, 5, 0, time.UTC)

func TestEntryFormat(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{
			name: "success",
			entry: Entry{
				Time:     fixedTime,
				Program:  "/usr/local/bin/radio",
				Args:     []string{"start", "BBC One", "--non-interactive"},
				Lines:    []string{"Playing BBC One"},
				Duration: 120 * time.Millisecond,
			},
			want: `[14-Oct-2026 07:30:05] exec "/usr/local/bin/radio" "start" "BBC One" "--non-interactive" exit=0 duration=120ms output=["Playing BBC One"]` + "\n",
		},
		{
			name: "failure with error",
			entry: Entry{
				Time:     fixedTime,
				Program:  "radio",
				Args:     []string{"status"},
				ExitCode: -1,
				Err:      "status timed out after 10s",
			},
			want: `[14-Oct-2026 07:30:05] exec "radio" "status" exit=-1 duration=0s output=[] error="status timed out after 10s"` + "\n",
		},
		{
			name: "embedded newline stays on one line",
			entry: Entry{
				Time:    fixedTime,
				Program: "radio",
				Args:    []string{"start", "a\nb"},
			},
			want: `[14-Oct-2026 07:30:05] exec "radio" "start" "a\nb" exit=0 duration=0s output=[]` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Format(); got != tt.want {
				t.Errorf("Format() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestRecordStampsTime(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.now = func() time.Time { return fixedTime }

	if err := l.Record(Entry{Program: "radio", Args: []string{"list"}}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "[14-Oct-2026 07:30:05] exec") {
		t.Errorf("unexpected line: %q", buf.String())
	}
}

func TestRecordConcurrent(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(Entry{Program: "radio", Args: []string{"status"}, Lines: []string{"Status: on", "Station: BBC"}})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != n {
		t.Fatalf("expected %d lines, got %d", n, len(lines))
	}
	for _, line := range lines {
		if !strings.HasSuffix(line, `output=["Status: on" "Station: BBC"]`) {
			t.Fatalf("interleaved line: %q", line)
		}
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radiopi_frontend.log")
	cfg := DefaultConfig()
	cfg.Path = path

	l, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l.Record(Entry{Program: "radio", Args: []string{"stop"}}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `exec "radio" "stop" exit=0`) {
		t.Errorf("audit file = %q", data)
	}

	// Writes after Close are discarded instead of reopening the file.
	if err := l.Record(Entry{Program: "radio"}); err != nil {
		t.Errorf("Record() after Close error = %v", err)
	}
}

func TestOpenDiscard(t *testing.T) {
	l, err := Open(Config{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()
	if err := l.Record(Entry{Program: "radio"}); err != nil {
		t.Errorf("Record() error = %v", err)
	}
}

func TestMirror(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(Config{DBPath: dbPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	entries := []Entry{
		{Time: fixedTime, Program: "radio", Args: []string{"status"}, Lines: []string{"Status: off"}, Duration: 15 * time.Millisecond},
		{Time: fixedTime.Add(time.Minute), Program: "radio", Args: []string{"start", "Nowhere"}, ExitCode: 2, Lines: []string{"no such station"}},
		{Time: fixedTime.Add(2 * time.Minute), Program: "radio", Args: []string{"list"}, ExitCode: -1, Err: "list timed out after 10s"},
	}
	for _, e := range entries {
		if err := l.Record(e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	recent, err := l.mirror.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 || recent[0].Args[0] != "list" || recent[1].ExitCode != 2 {
		t.Errorf("Recent() = %+v", recent)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	history, err := ReadHistory(context.Background(), dbPath, 10)
	if err != nil {
		t.Fatalf("ReadHistory() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	oldest := history[2]
	if !oldest.Time.Equal(fixedTime) || oldest.Duration != 15*time.Millisecond || oldest.Lines[0] != "Status: off" {
		t.Errorf("oldest entry = %+v", oldest)
	}
	if history[0].Err != "list timed out after 10s" || len(history[0].Lines) != 0 {
		t.Errorf("newest entry = %+v", history[0])
	}
}
