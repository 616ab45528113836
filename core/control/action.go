package control

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/sflip/radiopi/core/errors"
)

// Action identifiers accepted in the "action" form field.
const (
	ActionStartPlayback = "start_playback"
	ActionStopPlayback  = "stop_playback"
	ActionVolumeDown    = "volume_down"
	ActionVolumeUp      = "volume_up"
	ActionEnableTimer   = "enable_timer"
	ActionDisableTimer  = "disable_timer"
	ActionEnableAlarm   = "enable_alarm"
	ActionDisableAlarm  = "disable_alarm"
)

var allActions = []string{
	ActionStartPlayback,
	ActionStopPlayback,
	ActionVolumeDown,
	ActionVolumeUp,
	ActionEnableTimer,
	ActionDisableTimer,
	ActionEnableAlarm,
	ActionDisableAlarm,
}

// Form field names.
const (
	FieldAction        = "action"
	FieldStation       = "station"
	FieldTimerDuration = "timerduration"
	FieldAlarmTime     = "alarmtime"
	FieldAlarmDuration = "alarmduration"
)

const (
	// MaxDurationMinutes bounds timer and alarm durations (one day).
	MaxDurationMinutes = 1440
	// MaxStationLength bounds a station name in bytes.
	MaxStationLength = 256
)

var (
	digitsPattern    = regexp.MustCompile(`(\d+)`)
	clockTimePattern = regexp.MustCompile(`(\d\d):(\d\d)`)
)

// Action is one user-triggered operation mapped onto a single control
// program invocation.
type Action interface {
	// Name returns the form identifier of the action.
	Name() string
	// Args returns the argument vector passed after the program path.
	Args() []string

	action()
}

// StartPlayback tunes to a station.
type StartPlayback struct{ Station string }

// StopPlayback stops playback.
type StopPlayback struct{}

// VolumeDown lowers the volume by Step.
type VolumeDown struct{ Step int }

// VolumeUp raises the volume by Step.
type VolumeUp struct{ Step int }

// EnableTimer stops playback after Minutes.
type EnableTimer struct{ Minutes int }

// DisableTimer cancels the sleep timer.
type DisableTimer struct{}

// EnableAlarm starts playback at Hour:Minute. Minutes is the playback
// duration; zero leaves it to the control program.
type EnableAlarm struct {
	Hour    int
	Minute  int
	Minutes int
}

// DisableAlarm cancels the wake alarm.
type DisableAlarm struct{}

func (StartPlayback) Name() string { return ActionStartPlayback }
func (StopPlayback) Name() string  { return ActionStopPlayback }
func (VolumeDown) Name() string    { return ActionVolumeDown }
func (VolumeUp) Name() string      { return ActionVolumeUp }
func (EnableTimer) Name() string   { return ActionEnableTimer }
func (DisableTimer) Name() string  { return ActionDisableTimer }
func (EnableAlarm) Name() string   { return ActionEnableAlarm }
func (DisableAlarm) Name() string  { return ActionDisableAlarm }

func (a StartPlayback) Args() []string { return []string{"start", a.Station, "--non-interactive"} }
func (StopPlayback) Args() []string    { return []string{"stop"} }
func (a VolumeDown) Args() []string    { return []string{"volume", "-" + strconv.Itoa(a.Step)} }
func (a VolumeUp) Args() []string      { return []string{"volume", "+" + strconv.Itoa(a.Step)} }
func (a EnableTimer) Args() []string   { return []string{"sleep", strconv.Itoa(a.Minutes)} }
func (DisableTimer) Args() []string    { return []string{"nosleep"} }
func (DisableAlarm) Args() []string    { return []string{"disable"} }

func (a EnableAlarm) Args() []string {
	args := []string{"enable", fmt.Sprintf("%02d", a.Hour), fmt.Sprintf("%02d", a.Minute)}
	if a.Minutes > 0 {
		args = append(args, strconv.Itoa(a.Minutes))
	}
	return args
}

func (StartPlayback) action() {}
func (StopPlayback) action()  {}
func (VolumeDown) action()    {}
func (VolumeUp) action()      {}
func (EnableTimer) action()   {}
func (DisableTimer) action()  {}
func (EnableAlarm) action()   {}
func (DisableAlarm) action()  {}

// FormValues is the read side of a submitted form; url.Values satisfies it.
type FormValues interface {
	Get(key string) string
}

// ParseAction resolves the submitted action identifier and its parameters.
// Identifiers outside the feature set yield an UnknownActionError and
// malformed parameters a ValidationError. Neither leads to an invocation.
func ParseAction(form FormValues, features Features) (Action, error) {
	name := form.Get(FieldAction)
	if !features.Supports(name) {
		return nil, &errors.UnknownActionError{Action: name}
	}

	switch name {
	case ActionStartPlayback:
		station := form.Get(FieldStation)
		if err := validateStation(station); err != nil {
			return nil, err
		}
		return StartPlayback{Station: station}, nil
	case ActionStopPlayback:
		return StopPlayback{}, nil
	case ActionVolumeDown:
		return VolumeDown{Step: features.volumeStep()}, nil
	case ActionVolumeUp:
		return VolumeUp{Step: features.volumeStep()}, nil
	case ActionEnableTimer:
		minutes, err := parseMinutes(FieldTimerDuration, form.Get(FieldTimerDuration))
		if err != nil {
			return nil, err
		}
		return EnableTimer{Minutes: minutes}, nil
	case ActionDisableTimer:
		return DisableTimer{}, nil
	case ActionEnableAlarm:
		return parseEnableAlarm(form, features)
	case ActionDisableAlarm:
		return DisableAlarm{}, nil
	}
	return nil, &errors.UnknownActionError{Action: name}
}

func parseEnableAlarm(form FormValues, features Features) (Action, error) {
	raw := form.Get(FieldAlarmTime)
	m := clockTimePattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, errors.NewValidation(FieldAlarmTime, raw, "expected HH:MM")
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return nil, errors.NewValidation(FieldAlarmTime, raw, "time of day out of range")
	}

	alarm := EnableAlarm{Hour: hour, Minute: minute}
	if duration := form.Get(FieldAlarmDuration); features.AlarmDuration && duration != "" {
		minutes, err := parseMinutes(FieldAlarmDuration, duration)
		if err != nil {
			return nil, err
		}
		alarm.Minutes = minutes
	}
	return alarm, nil
}

// parseMinutes takes the first run of digits in raw as a duration.
func parseMinutes(field, raw string) (int, error) {
	digits := digitsPattern.FindString(raw)
	if digits == "" {
		return 0, errors.NewValidation(field, raw, "expected a number of minutes")
	}
	minutes, err := strconv.Atoi(digits)
	if err != nil || minutes < 1 || minutes > MaxDurationMinutes {
		return 0, errors.NewValidation(field, raw, fmt.Sprintf("minutes must be between 1 and %d", MaxDurationMinutes))
	}
	return minutes, nil
}

func validateStation(station string) error {
	switch {
	case station == "":
		return errors.NewValidation(FieldStation, station, "must not be empty")
	case len(station) > MaxStationLength:
		return errors.NewValidation(FieldStation, station[:MaxStationLength], fmt.Sprintf("longer than %d bytes", MaxStationLength))
	case strings.HasPrefix(station, "-"):
		return errors.NewValidation(FieldStation, station, "must not start with '-'")
	case strings.ContainsFunc(station, unicode.IsControl):
		return errors.NewValidation(FieldStation, station, "contains control characters")
	}
	return nil
}
