package audio

import (
	"sync"
	"time"
)

// ScheduledBuffer is a decoded playback buffer with its assigned start time.
type ScheduledBuffer struct {
	Samples  []float32
	Format   Format
	StartAt  time.Time
	Duration time.Duration
}

// Scheduler assigns start times to decoded playback buffers so that
// consecutive buffers play back to back with no overlap and no gap.
// A cursor tracks the end of the last scheduled buffer; each new buffer
// starts at the later of the cursor and the current time.
type Scheduler struct {
	mu     sync.Mutex
	format Format
	cursor time.Time
	now    func() time.Time
}

// NewScheduler creates a scheduler for the given playback format.
func NewScheduler(format Format) *Scheduler {
	return &Scheduler{
		format: format,
		now:    time.Now,
	}
}

// NewSchedulerWithClock creates a scheduler with an injected clock for tests.
func NewSchedulerWithClock(format Format, now func() time.Time) *Scheduler {
	return &Scheduler{
		format: format,
		now:    now,
	}
}

// Schedule assigns a start time to the buffer and advances the cursor by
// its duration. If the stream has fallen behind real time the buffer
// starts immediately; otherwise it is queued at the cursor.
func (s *Scheduler) Schedule(samples []float32) ScheduledBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	dur := s.format.Duration(len(samples) * 2)
	start := s.cursor
	if now := s.now(); now.After(start) {
		start = now
	}
	s.cursor = start.Add(dur)

	return ScheduledBuffer{
		Samples:  samples,
		Format:   s.format,
		StartAt:  start,
		Duration: dur,
	}
}

// Reset clears the cursor so the next buffer starts immediately.
// Called when a session starts or when queued playback is flushed.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = time.Time{}
}

// Pending returns how much scheduled audio remains after now.
func (s *Scheduler) Pending() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.cursor.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}
