package audio

import (
	"os"
	"sync"
)

// Recorder accumulates the caller's side of a session as raw PCM so the
// call can be saved as evidence after it ends.
type Recorder struct {
	mu     sync.Mutex
	format Format
	data   []byte
	active bool
}

// NewRecorder creates a recorder for the given capture format.
func NewRecorder(format Format) *Recorder {
	return &Recorder{format: format}
}

// Start begins a new recording, discarding any previous data.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = r.data[:0]
	r.active = true
}

// WriteFrame appends a captured sample frame. Frames arriving while the
// recorder is stopped are dropped.
func (r *Recorder) WriteFrame(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.data = append(r.data, EncodePCM(samples)...)
}

// Stop ends the recording. Data is retained until the next Start.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
}

// Active reports whether the recorder is currently accepting frames.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Len returns the number of recorded PCM bytes.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// DurationMs returns the recorded duration in milliseconds.
func (r *Recorder) DurationMs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format.DurationMs(len(r.data))
}

// WAV returns the recording wrapped in a WAV header.
func (r *Recorder) WAV() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return PCMToWAV(r.data, r.format)
}

// SaveWAV writes the recording to path as a WAV file.
func (r *Recorder) SaveWAV(path string) error {
	return os.WriteFile(path, r.WAV(), 0o644)
}
