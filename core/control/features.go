package control

import "slices"

// DefaultVolumeStep is the volume change applied by one volume action.
const DefaultVolumeStep = 10

// Features selects which optional controls a deployment offers.
type Features struct {
	Timer             bool     // Sleep timer actions and panel block
	AlarmDuration     bool     // Pass the alarm duration to the control program
	VolumeControls    bool     // Volume actions
	VolumeHiddenHosts []string // Hosts that hide the volume buttons
	VolumeStep        int
}

// DefaultFeatures returns every control enabled with the default volume step.
func DefaultFeatures() Features {
	return Features{
		Timer:          true,
		AlarmDuration:  true,
		VolumeControls: true,
		VolumeStep:     DefaultVolumeStep,
	}
}

// Supports reports whether the named action belongs to the closed set
// offered by this feature configuration.
func (f Features) Supports(name string) bool {
	switch name {
	case ActionStartPlayback, ActionStopPlayback, ActionEnableAlarm, ActionDisableAlarm:
		return true
	case ActionEnableTimer, ActionDisableTimer:
		return f.Timer
	case ActionVolumeDown, ActionVolumeUp:
		return f.VolumeControls
	}
	return false
}

// Actions lists the supported action names in display order.
func (f Features) Actions() []string {
	var names []string
	for _, name := range allActions {
		if f.Supports(name) {
			names = append(names, name)
		}
	}
	return names
}

// ShowVolume reports whether volume buttons are rendered on host. Hiding
// only affects the page; posted volume actions are still accepted.
func (f Features) ShowVolume(host string) bool {
	return f.VolumeControls && !slices.Contains(f.VolumeHiddenHosts, host)
}

func (f Features) volumeStep() int {
	if f.VolumeStep <= 0 {
		return DefaultVolumeStep
	}
	return f.VolumeStep
}
