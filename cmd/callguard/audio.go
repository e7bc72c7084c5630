package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/shestorm/callguard/pkg/audio"
)

// micCapture reads the microphone via malgo and delivers fixed-size
// float32 frames.
type micCapture struct {
	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	pending []byte
}

func newMicCapture() *micCapture {
	return &micCapture{}
}

func (m *micCapture) Start(_ context.Context, handler audio.FrameHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return fmt.Errorf("capture already started")
	}

	format := audio.CaptureFormat()

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	frameBytes := audio.FrameSize * 2
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			m.mu.Lock()
			m.pending = append(m.pending, pInputSamples...)
			var frames [][]byte
			for len(m.pending) >= frameBytes {
				frame := make([]byte, frameBytes)
				copy(frame, m.pending[:frameBytes])
				m.pending = m.pending[frameBytes:]
				frames = append(frames, frame)
			}
			m.mu.Unlock()

			for _, frame := range frames {
				handler(audio.DecodePCM(frame))
			}
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return fmt.Errorf("start microphone: %w", err)
	}

	m.ctx = malgoCtx
	m.device = device
	return nil
}

func (m *micCapture) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	_ = m.device.Stop()
	m.device.Uninit()
	m.device = nil
	_ = m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	m.pending = nil
	return nil
}

// pcmQueue is the pull source for an oto player. When the queue is
// empty it feeds silence so oto keeps the stream clocked instead of
// underrunning.
type pcmQueue struct {
	mu  sync.Mutex
	buf []byte
}

func (q *pcmQueue) write(data []byte) {
	q.mu.Lock()
	q.buf = append(q.buf, data...)
	q.mu.Unlock()
}

func (q *pcmQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

// speakerPlayer plays scheduled buffers through oto. Oto pulls from a
// byte queue, so appending buffers in schedule order preserves the
// gapless timeline. Flush abandons the current player and queue so
// stale audio cannot bleed into the next turn.
type speakerPlayer struct {
	otoCtx *oto.Context

	mu     sync.Mutex
	queue  *pcmQueue
	player *oto.Player
	closed bool
}

func newSpeakerPlayer() (*speakerPlayer, error) {
	format := audio.PlaybackFormat()
	opts := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
		// ~100ms buffer for low latency.
		BufferSize: 100 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	return &speakerPlayer{otoCtx: otoCtx}, nil
}

func (s *speakerPlayer) Play(buf audio.ScheduledBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("speaker is closed")
	}

	if s.player == nil {
		s.queue = &pcmQueue{}
		s.player = s.otoCtx.NewPlayer(s.queue)
		s.player.Play()
	}
	s.queue.write(audio.EncodePCM(buf.Samples))
	return nil
}

func (s *speakerPlayer) Flush() {
	s.mu.Lock()
	player := s.player
	s.player = nil
	s.queue = nil
	s.mu.Unlock()

	if player != nil {
		player.Pause()
		player.Reset()
		player.Close()
	}
}

func (s *speakerPlayer) Close() error {
	s.mu.Lock()
	s.closed = true
	player := s.player
	s.player = nil
	s.queue = nil
	s.mu.Unlock()

	if player != nil {
		return player.Close()
	}
	return nil
}
