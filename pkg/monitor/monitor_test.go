package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shestorm/callguard/pkg/alert"
	"github.com/shestorm/callguard/pkg/audio"
	"github.com/shestorm/callguard/pkg/core"
	"github.com/shestorm/callguard/pkg/live"
)

type fakeUpstream struct {
	events chan live.Event

	mu        sync.Mutex
	frames    [][]float32
	responses []live.FunctionResponse

	closeOnce sync.Once
	err       error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{events: make(chan live.Event, 64)}
}

func (u *fakeUpstream) Events() <-chan live.Event { return u.events }

func (u *fakeUpstream) SendAudioFrame(samples []float32) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.frames = append(u.frames, append([]float32(nil), samples...))
	return nil
}

func (u *fakeUpstream) SendToolResponse(resp live.FunctionResponse) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.responses = append(u.responses, resp)
	return nil
}

func (u *fakeUpstream) Close() error {
	u.closeOnce.Do(func() { close(u.events) })
	return nil
}

func (u *fakeUpstream) Err() error { return u.err }

func (u *fakeUpstream) emit(ev live.Event) { u.events <- ev }

func (u *fakeUpstream) sentResponses() []live.FunctionResponse {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]live.FunctionResponse, len(u.responses))
	copy(out, u.responses)
	return out
}

func (u *fakeUpstream) sentFrames() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.frames)
}

type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	upstream *fakeUpstream
	err      error
}

func (d *fakeDialer) dial(ctx context.Context, cfg live.Config) (Upstream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.upstream, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeCapture struct {
	mu       sync.Mutex
	handler  audio.FrameHandler
	startErr error
	started  int
	stopped  int
}

func (c *fakeCapture) Start(ctx context.Context, handler audio.FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.handler = handler
	c.started++
	return nil
}

func (c *fakeCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
	return nil
}

func (c *fakeCapture) push(samples []float32) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(samples)
	}
}

type fakePlayer struct {
	mu      sync.Mutex
	buffers []audio.ScheduledBuffer
	flushes int
}

func (p *fakePlayer) Play(buf audio.ScheduledBuffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffers = append(p.buffers, buf)
	return nil
}

func (p *fakePlayer) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
}

func (p *fakePlayer) Close() error { return nil }

func (p *fakePlayer) played() []audio.ScheduledBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audio.ScheduledBuffer, len(p.buffers))
	copy(out, p.buffers)
	return out
}

type sinkCall struct {
	op      string
	session string
	message string
	score   int
	status  string
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *fakeSink) StartCall(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{op: "start", session: sessionID})
	return nil
}

func (s *fakeSink) RecordAlert(ctx context.Context, sessionID, message string, score int, danger bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{op: "alert", session: sessionID, message: message, score: score})
	return nil
}

func (s *fakeSink) FinishCall(ctx context.Context, sessionID string, finalScore int, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{op: "finish", session: sessionID, score: finalScore, status: status})
	return nil
}

func (s *fakeSink) recorded() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sinkCall, len(s.calls))
	copy(out, s.calls)
	return out
}

type harness struct {
	monitor  *Monitor
	upstream *fakeUpstream
	dialer   *fakeDialer
	capture  *fakeCapture
	player   *fakePlayer
	sink     *fakeSink
	clock    *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		upstream: newFakeUpstream(),
		capture:  &fakeCapture{},
		player:   &fakePlayer{},
		sink:     &fakeSink{},
		clock:    &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	h.dialer = &fakeDialer{upstream: h.upstream}
	h.monitor = New(Config{APIKey: "test"}, Deps{
		Dial:       h.dialer.dial,
		Capture:    h.capture,
		Player:     h.player,
		Dispatcher: alert.NewDispatcher(alert.NopHaptics{}, alert.NopSpeaker{}, alert.WithClock(h.clock.Now)),
		Sink:       h.sink,
		Clock:      h.clock.Now,
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.monitor.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.monitor.State(); got != StateActive {
		t.Fatalf("state after start = %v, want ACTIVE", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMonitor_StartIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	defer h.monitor.Stop()

	// A second start while active is a no-op: still one session.
	if err := h.monitor.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if h.dialer.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", h.dialer.dialCount())
	}
}

func TestMonitor_CaptureDeniedReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.capture.startErr = errors.New("device busy")

	err := h.monitor.Start(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrPermissionDenied {
		t.Errorf("err = %v, want permission_denied", err)
	}
	if h.monitor.State() != StateIdle {
		t.Errorf("state = %v, want IDLE", h.monitor.State())
	}
	if h.dialer.dialCount() != 0 {
		t.Error("must not dial when capture fails")
	}
}

func TestMonitor_DialFailureIsSingleAttempt(t *testing.T) {
	h := newHarness(t)
	h.dialer.err = errors.New("upstream unreachable")

	if err := h.monitor.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if h.monitor.State() != StateIdle {
		t.Errorf("state = %v, want IDLE", h.monitor.State())
	}
	if h.dialer.dialCount() != 1 {
		t.Errorf("dials = %d, want exactly 1", h.dialer.dialCount())
	}
	if h.capture.stopped != 1 {
		t.Error("capture must be released on dial failure")
	}
}

func TestMonitor_StopOnIdleIsNoOp(t *testing.T) {
	h := newHarness(t)
	if err := h.monitor.Stop(); err != nil {
		t.Fatalf("Stop on idle: %v", err)
	}
	if h.dialer.dialCount() != 0 {
		t.Error("stop must not touch the dialer")
	}
}

func TestMonitor_TranscriptAppends(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.upstream.emit(&live.TranscriptChunkEvent{Text: "this is "})
	h.upstream.emit(&live.TranscriptChunkEvent{Text: "the IRS"})

	waitFor(t, func() bool { return len(h.monitor.Transcript()) == 2 })
	entries := h.monitor.Transcript()
	if entries[0].Text != "this is " || entries[1].Text != "the IRS" {
		t.Errorf("entries = %q, %q", entries[0].Text, entries[1].Text)
	}
	h.monitor.Stop()
}

func TestMonitor_AudioChunksScheduledGapless(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	// Two chunks of 24000 samples each (one second at playback rate).
	chunk := audio.EncodePCM(make([]float32, 24000))
	h.upstream.emit(&live.AudioChunkEvent{Data: chunk})
	h.upstream.emit(&live.AudioChunkEvent{Data: chunk})

	waitFor(t, func() bool { return len(h.player.played()) == 2 })
	played := h.player.played()
	if !played[1].StartAt.Equal(played[0].StartAt.Add(played[0].Duration)) {
		t.Errorf("second buffer at %v, want %v", played[1].StartAt, played[0].StartAt.Add(played[0].Duration))
	}
	h.monitor.Stop()
}

func TestMonitor_RiskUpdateReplacesWholesale(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.upstream.emit(&live.ToolCallEvent{
		ID:   "c1",
		Name: UpdateRiskTool,
		Args: json.RawMessage(`{"score":40,"impersonation":true,"financial":true}`),
	})
	waitFor(t, func() bool { return h.monitor.Risk().Score == 40 })

	// The next update omits impersonation and financial; they clear.
	h.upstream.emit(&live.ToolCallEvent{
		ID:   "c2",
		Name: UpdateRiskTool,
		Args: json.RawMessage(`{"score":85,"alertMessage":"Hang up now","urgency":true}`),
	})
	waitFor(t, func() bool { return h.monitor.Risk().Score == 85 })

	risk := h.monitor.Risk()
	want := Signals{Urgency: true}
	if risk.Signals != want {
		t.Errorf("signals = %+v, want %+v", risk.Signals, want)
	}
	if !risk.Danger() {
		t.Error("score 85 must be danger")
	}
	// Danger is a flag, not a state transition.
	if h.monitor.State() != StateActive {
		t.Errorf("state = %v, want ACTIVE", h.monitor.State())
	}

	// Both calls acked regardless of content.
	waitFor(t, func() bool { return len(h.upstream.sentResponses()) == 2 })
	for _, resp := range h.upstream.sentResponses() {
		if ok, _ := resp.Response["ok"].(bool); !ok {
			t.Errorf("response %q missing ok", resp.ID)
		}
	}
	h.monitor.Stop()
}

func TestMonitor_EscalationLatchedUntilStop(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.upstream.emit(&live.ToolCallEvent{
		ID:   "c1",
		Name: UpdateRiskTool,
		Args: json.RawMessage(`{"score":90,"manipulation":true}`),
	})
	waitFor(t, func() bool { return h.monitor.Escalated() })

	// A later calmer update does not clear the escalation.
	h.upstream.emit(&live.ToolCallEvent{
		ID:   "c2",
		Name: UpdateRiskTool,
		Args: json.RawMessage(`{"score":30}`),
	})
	waitFor(t, func() bool { return h.monitor.Risk().Score == 30 })
	if !h.monitor.Escalated() {
		t.Error("escalation must stay latched while the session runs")
	}

	h.monitor.Stop()
	if h.monitor.Escalated() {
		t.Error("stop must clear the escalation")
	}
}

func TestMonitor_ElapsedAndSnapshot(t *testing.T) {
	h := newHarness(t)
	if h.monitor.Elapsed() != 0 {
		t.Error("idle monitor must report zero elapsed")
	}
	h.start(t)

	h.clock.Advance(42 * time.Second)
	if got := h.monitor.Elapsed(); got != 42*time.Second {
		t.Errorf("elapsed = %v, want 42s", got)
	}

	h.upstream.emit(&live.TranscriptChunkEvent{Text: "wire the money"})
	waitFor(t, func() bool { return len(h.monitor.Transcript()) == 1 })

	snap := h.monitor.Snapshot()
	if snap.State != StateActive || snap.SessionID == "" {
		t.Errorf("snapshot state = %v, session = %q", snap.State, snap.SessionID)
	}
	if snap.Elapsed != 42*time.Second {
		t.Errorf("snapshot elapsed = %v, want 42s", snap.Elapsed)
	}
	if len(snap.Transcript) != 1 || snap.Transcript[0].Text != "wire the money" {
		t.Errorf("snapshot transcript = %+v", snap.Transcript)
	}

	h.monitor.Stop()
	if h.monitor.Elapsed() != 0 {
		t.Error("elapsed must reset to zero after stop")
	}
}

func TestMonitor_UnknownAndMalformedToolCallsAcked(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.upstream.emit(&live.ToolCallEvent{ID: "u1", Name: "selfDestruct", Args: json.RawMessage(`{}`)})
	h.upstream.emit(&live.ToolCallEvent{ID: "u2", Name: UpdateRiskTool, Args: json.RawMessage(`{"score":"high"}`)})

	waitFor(t, func() bool { return len(h.upstream.sentResponses()) == 2 })
	if h.monitor.Risk().Score != 0 {
		t.Error("malformed update must not change risk")
	}
	h.monitor.Stop()
}

func TestMonitor_AlertDeliveredAndArchived(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.upstream.emit(&live.ToolCallEvent{
		ID:   "c1",
		Name: UpdateRiskTool,
		Args: json.RawMessage(`{"score":90,"alertMessage":"Caller is impersonating your bank","impersonation":true}`),
	})

	waitFor(t, func() bool {
		for _, c := range h.sink.recorded() {
			if c.op == "alert" {
				return true
			}
		}
		return false
	})
	for _, c := range h.sink.recorded() {
		if c.op == "alert" {
			if c.message != "Caller is impersonating your bank" || c.score != 90 {
				t.Errorf("alert = %+v", c)
			}
		}
	}
	h.monitor.Stop()
}

func TestMonitor_InterruptedFlushesPlayback(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.upstream.emit(&live.AudioChunkEvent{Data: audio.EncodePCM(make([]float32, 24000))})
	h.upstream.emit(&live.InterruptedEvent{})

	waitFor(t, func() bool {
		h.player.mu.Lock()
		defer h.player.mu.Unlock()
		return h.player.flushes >= 1
	})

	// After the flush the cursor is reset: new audio starts at now.
	h.clock.Advance(100 * time.Millisecond)
	h.upstream.emit(&live.AudioChunkEvent{Data: audio.EncodePCM(make([]float32, 2400))})
	waitFor(t, func() bool { return len(h.player.played()) == 2 })
	if got := h.player.played()[1].StartAt; !got.Equal(h.clock.Now()) {
		t.Errorf("post-flush buffer starts at %v, want %v", got, h.clock.Now())
	}
	h.monitor.Stop()
}

func TestMonitor_CapturedFramesForwardedAndRecorded(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.capture.push(make([]float32, audio.FrameSize))
	h.capture.push(make([]float32, audio.FrameSize))

	waitFor(t, func() bool { return h.upstream.sentFrames() == 2 })

	h.monitor.Stop()
	wav := h.monitor.Recording()
	wantLen := 44 + audio.FrameSize*2*2
	if len(wav) != wantLen {
		t.Errorf("recording length = %d, want %d", len(wav), wantLen)
	}
}

func TestMonitor_RestartRecordingDiscardsEvidence(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.capture.push(make([]float32, audio.FrameSize))
	waitFor(t, func() bool { return h.upstream.sentFrames() == 1 })

	if err := h.monitor.RestartRecording(); err != nil {
		t.Fatalf("RestartRecording: %v", err)
	}
	h.capture.push(make([]float32, audio.FrameSize))
	waitFor(t, func() bool { return h.upstream.sentFrames() == 2 })

	h.monitor.Stop()
	// Only the post-restart frame remains in the evidence.
	if got, want := len(h.monitor.Recording()), 44+audio.FrameSize*2; got != want {
		t.Errorf("recording length = %d, want %d", got, want)
	}

	if err := h.monitor.RestartRecording(); err == nil {
		t.Error("expected error restarting recording while idle")
	}
}

func TestMonitor_UpstreamDropReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	dropErr := core.NewChannelFailureError("stream dropped", errors.New("reset"))
	h.upstream.emit(&live.ClosedEvent{Err: dropErr})
	h.upstream.Close()

	waitFor(t, func() bool { return h.monitor.State() == StateIdle })

	var finish sinkCall
	waitFor(t, func() bool {
		for _, c := range h.sink.recorded() {
			if c.op == "finish" {
				finish = c
				return true
			}
		}
		return false
	})
	if finish.status != "dropped" {
		t.Errorf("finish status = %q, want dropped", finish.status)
	}
	if h.capture.stopped == 0 {
		t.Error("capture must be released when the session drops")
	}
}

func TestMonitor_StopThenRestart(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.upstream.emit(&live.TranscriptChunkEvent{Text: "old session"})
	waitFor(t, func() bool { return len(h.monitor.Transcript()) == 1 })
	firstID := h.monitor.SessionID()

	if err := h.monitor.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.monitor.State() != StateIdle {
		t.Fatalf("state = %v, want IDLE", h.monitor.State())
	}

	// Restart with a fresh upstream: transcript and risk reset.
	h.clock.Advance(time.Second)
	h.upstream = newFakeUpstream()
	h.dialer.upstream = h.upstream
	h.start(t)
	defer h.monitor.Stop()

	if len(h.monitor.Transcript()) != 0 {
		t.Error("transcript must reset on restart")
	}
	if h.monitor.Risk().Score != 0 {
		t.Error("risk must reset on restart")
	}
	if h.monitor.SessionID() == firstID {
		t.Error("restart must mint a new session id")
	}
}
