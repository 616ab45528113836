package control

import (
	"context"
	"sort"
	"strings"

	"github.com/sflip/radiopi/core/errors"
)

// Subcommands that query the control program without changing its state.
const (
	CmdStatus = "status"
	CmdList   = "list"
)

// Status field names reported by the control program.
const (
	KeyStatus     = "Status"
	KeyStation    = "Station"
	KeyTimer      = "Timer"
	KeyTimerSetTo = "Timer set to"
	KeyAlarm      = "Alarm"
	KeyAlarmTime  = "Alarm time"
)

// Status field values with special meaning.
const (
	ValueOn       = "on"
	ValueOff      = "off"
	ValueEnabled  = "enabled"
	ValueDisabled = "disabled"
)

const statusDelimiter = ": "

// Status is a parsed snapshot of the control program's reported state.
type Status map[string]string

// ParseStatus builds a Status from "Key: Value" lines, splitting each line at
// the first ": ". A later duplicate key overwrites an earlier one. Blank lines
// are skipped. A line that ends in a bare ":" (its trailing space having been
// trimmed) yields an empty value.
//
// Lines without the delimiter are not guessed at: each one produces a
// ParseError and is left out of the result. The returned Status always holds
// every well-formed line, even when the error is non-nil.
func ParseStatus(lines []string) (Status, error) {
	status := make(Status, len(lines))
	var errs []error
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, statusDelimiter)
		if !ok {
			if bare, found := strings.CutSuffix(line, ":"); found && !strings.Contains(bare, statusDelimiter) {
				key, ok = bare, true
			}
		}
		if !ok {
			errs = append(errs, errors.NewParse(CmdStatus, i+1, line, `missing ": " delimiter`))
			continue
		}
		if key == "" {
			errs = append(errs, errors.NewParse(CmdStatus, i+1, line, "empty key"))
			continue
		}
		status[key] = value
	}
	return status, errors.Join(errs...)
}

// Get returns the value for key and whether the key was reported at all.
func (s Status) Get(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// Is reports whether key was reported with exactly value.
func (s Status) Is(key, value string) bool {
	v, ok := s[key]
	return ok && v == value
}

// Playing reports whether playback is on.
func (s Status) Playing() bool { return s.Is(KeyStatus, ValueOn) }

// Stopped reports whether playback is explicitly off.
func (s Status) Stopped() bool { return s.Is(KeyStatus, ValueOff) }

// TimerEnabled reports whether the sleep timer is set.
func (s Status) TimerEnabled() bool { return s.Is(KeyTimer, ValueEnabled) }

// AlarmEnabled reports whether the wake alarm is set.
func (s Status) AlarmEnabled() bool { return s.Is(KeyAlarm, ValueEnabled) }

// Lines serialises the status back to "Key: Value" lines sorted by key.
func (s Status) Lines() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+statusDelimiter+s[k])
	}
	return lines
}

// ParseStations returns the station names from a list invocation verbatim.
// A failed invocation yields no stations, the same as an empty list.
func ParseStations(result *Result) []string {
	if !result.Succeeded() {
		return nil
	}
	stations := make([]string, 0, len(result.Lines))
	for _, line := range result.Lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		stations = append(stations, line)
	}
	return stations
}

// Snapshot is the state re-derived from the control program for one render.
type Snapshot struct {
	Status   Status
	Stations []string // Only queried while playback is not on
	// Problems holds failed status output and parse failures, in order.
	Problems []string
}

// TakeSnapshot queries the current status and, when withStations is set and
// playback is not on, the station list. Nothing is cached between calls.
func TakeSnapshot(ctx context.Context, runner Runner, withStations bool) *Snapshot {
	snap := &Snapshot{Status: Status{}}

	result, err := runner.Invoke(ctx, CmdStatus)
	if err != nil {
		snap.Problems = append(snap.Problems, err.Error())
	}
	switch {
	case result.Succeeded():
		status, parseErr := ParseStatus(result.Lines)
		snap.Status = status
		snap.Problems = append(snap.Problems, errorLines(parseErr)...)
	case result != nil:
		snap.Problems = append(snap.Problems, result.Lines...)
	}

	if withStations && !snap.Status.Playing() {
		list, _ := runner.Invoke(ctx, CmdList)
		snap.Stations = ParseStations(list)
	}
	return snap
}

// errorLines flattens a joined error into one message per wrapped error.
func errorLines(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var lines []string
		for _, e := range joined.Unwrap() {
			lines = append(lines, errorLines(e)...)
		}
		return lines
	}
	return []string{err.Error()}
}
