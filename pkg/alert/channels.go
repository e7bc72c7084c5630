package alert

// Haptics drives a vibration motor. Pattern entries alternate between
// vibration and pause durations in milliseconds.
type Haptics interface {
	Vibrate(pattern []int) error
}

// Speaker announces an alert out loud.
type Speaker interface {
	Speak(text string, rate, pitch float64) error
}

// Vibration patterns, in milliseconds.
var (
	// DangerPattern is three long pulses for high-risk alerts.
	DangerPattern = []int{600, 100, 600, 100, 600}

	// CautionPattern is two short pulses for lower-risk alerts.
	CautionPattern = []int{200, 100, 200}
)

// Spoken alerts are slightly fast and pitched down to cut through an
// ongoing call.
const (
	SpeechRate  = 1.05
	SpeechPitch = 0.9
)

// NopHaptics ignores vibration requests.
type NopHaptics struct{}

func (NopHaptics) Vibrate([]int) error { return nil }

// NopSpeaker ignores speech requests.
type NopSpeaker struct{}

func (NopSpeaker) Speak(string, float64, float64) error { return nil }
