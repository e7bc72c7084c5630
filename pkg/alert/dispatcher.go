// Package alert fans a risk warning out to haptic, spoken and visual
// channels, with a global throttle so channels cannot stack faster than a
// person can react.
package alert

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultThrottleWindow is the minimum spacing between delivered
	// alerts. Alerts inside the window are dropped, not deferred.
	DefaultThrottleWindow = 4 * time.Second

	// DefaultNotificationTTL is how long a visual notification stays
	// queued before it expires.
	DefaultNotificationTTL = 6 * time.Second
)

// Notification is a queued visual alert.
type Notification struct {
	Message string
	Danger  bool
	At      time.Time

	expiresAt time.Time
}

// Dispatcher delivers alerts across channels. Haptic and spoken delivery
// are fire-and-forget; the visual queue is read back via Notifications.
type Dispatcher struct {
	haptics Haptics
	speaker Speaker
	logger  zerolog.Logger

	window time.Duration
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	lastAlert time.Time
	queue     []Notification
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithThrottleWindow overrides the alert spacing.
func WithThrottleWindow(window time.Duration) Option {
	return func(d *Dispatcher) { d.window = window }
}

// WithNotificationTTL overrides the visual queue expiry.
func WithNotificationTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) { d.ttl = ttl }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher creates a dispatcher. Nil channels are replaced with no-ops.
func NewDispatcher(haptics Haptics, speaker Speaker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		haptics: haptics,
		speaker: speaker,
		window:  DefaultThrottleWindow,
		ttl:     DefaultNotificationTTL,
		now:     time.Now,
	}
	if d.haptics == nil {
		d.haptics = NopHaptics{}
	}
	if d.speaker == nil {
		d.speaker = NopSpeaker{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify delivers an alert on every channel. Returns false when the alert
// falls inside the throttle window and is dropped entirely; a dropped
// alert does not reset the window.
func (d *Dispatcher) Notify(message string, danger bool) bool {
	d.mu.Lock()
	now := d.now()
	if !d.lastAlert.IsZero() && now.Sub(d.lastAlert) < d.window {
		d.mu.Unlock()
		d.logger.Debug().Str("message", message).Msg("alert throttled")
		return false
	}
	d.lastAlert = now
	d.pruneLocked(now)
	d.queue = append(d.queue, Notification{
		Message:   message,
		Danger:    danger,
		At:        now,
		expiresAt: now.Add(d.ttl),
	})
	d.mu.Unlock()

	pattern := CautionPattern
	if danger {
		pattern = DangerPattern
	}

	// Physical channels run fire-and-forget so a slow device cannot
	// block the session loop.
	go func() {
		if err := d.haptics.Vibrate(pattern); err != nil {
			d.logger.Warn().Err(err).Msg("haptic alert failed")
		}
	}()
	go func() {
		if err := d.speaker.Speak(message, SpeechRate, SpeechPitch); err != nil {
			d.logger.Warn().Err(err).Msg("spoken alert failed")
		}
	}()

	return true
}

// Notifications returns the visual queue, oldest first, after dropping
// expired entries.
func (d *Dispatcher) Notifications() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked(d.now())

	out := make([]Notification, len(d.queue))
	copy(out, d.queue)
	return out
}

// Reset clears the throttle window and visual queue for a new session.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastAlert = time.Time{}
	d.queue = d.queue[:0]
}

// Entries expire oldest-first; the queue stays sorted by insertion time.
func (d *Dispatcher) pruneLocked(now time.Time) {
	i := 0
	for i < len(d.queue) && !d.queue[i].expiresAt.After(now) {
		i++
	}
	if i > 0 {
		d.queue = append(d.queue[:0], d.queue[i:]...)
	}
}
