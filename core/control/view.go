package control

// Module is the panel section shown first.
type Module string

const (
	ModuleRadio Module = "radio"
	ModuleAlarm Module = "alarm"
)

// DefaultModule picks the alarm section when playback is off and an alarm
// is set, the radio section otherwise. Missing keys never match.
func DefaultModule(status Status) Module {
	if status.Stopped() && status.AlarmEnabled() {
		return ModuleAlarm
	}
	return ModuleRadio
}
