package audio

import "context"

// FrameSize is the number of samples delivered per capture callback.
// At 16kHz mono this is 256ms of audio per frame.
const FrameSize = 4096

// FrameHandler receives one frame of captured float32 samples.
// The slice is only valid for the duration of the call.
type FrameHandler func(samples []float32)

// CaptureDevice is an audio input source that pushes sample frames to a
// handler until stopped.
type CaptureDevice interface {
	// Start begins capture and invokes handler for every frame.
	// Returns an error if the device cannot be opened or access is denied.
	Start(ctx context.Context, handler FrameHandler) error

	// Stop halts capture and releases the device.
	Stop() error
}

// Player accepts scheduled playback buffers.
type Player interface {
	// Play queues a scheduled buffer for output at its start time.
	Play(buf ScheduledBuffer) error

	// Flush discards any queued audio that has not started playing.
	Flush()

	// Close releases the output device.
	Close() error
}
