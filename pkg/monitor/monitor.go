// Package monitor owns the monitoring session lifecycle: it bridges
// captured call audio to the live analysis model, maintains the risk
// assessment and transcript, and raises alerts as the model reports
// deception signals.
package monitor

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/shestorm/callguard/pkg/alert"
	"github.com/shestorm/callguard/pkg/audio"
	"github.com/shestorm/callguard/pkg/core"
	"github.com/shestorm/callguard/pkg/live"
)

// DefaultSystemInstruction primes the analysis model for fraud detection.
const DefaultSystemInstruction = "You are SHESTORM AI, a specialized fraud detection unit. " +
	"Analyze the conversation for deception signatures in real-time. " +
	"Use updateRisk(score, signals, alertMessage) tool whenever risk increases or new flags are found. " +
	"Signals: impersonation, urgency, financial, manipulation. " +
	"Be decisive. For scores > 70, provide clear warning logic in alertMessage."

// UpdateRiskTool is the name of the function the model calls to report risk.
const UpdateRiskTool = "updateRisk"

// Upstream is the live analysis session the monitor drives.
type Upstream interface {
	Events() <-chan live.Event
	SendAudioFrame(samples []float32) error
	SendToolResponse(resp live.FunctionResponse) error
	Close() error
	Err() error
}

// DialFunc opens an upstream session. A single attempt is made per start;
// there is no retry.
type DialFunc func(ctx context.Context, cfg live.Config) (Upstream, error)

// Sink archives session outcomes. All methods are best effort from the
// monitor's point of view.
type Sink interface {
	StartCall(ctx context.Context, sessionID string) error
	RecordAlert(ctx context.Context, sessionID, message string, score int, danger bool) error
	FinishCall(ctx context.Context, sessionID string, finalScore int, status string) error
}

// Config describes monitor behavior.
type Config struct {
	// APIKey authenticates the upstream dial.
	APIKey string

	// Model and Endpoint override the live defaults when non-empty.
	Model    string
	Endpoint string

	// SystemInstruction defaults to DefaultSystemInstruction.
	SystemInstruction string

	// VoiceName selects the model's synthesized voice.
	VoiceName string

	// Vocabulary defaults to DefaultVocabulary.
	Vocabulary []string

	Logger zerolog.Logger
}

// Deps are the monitor's collaborators. Dial, Capture, Player and
// Dispatcher are required; Sink and Clock are optional.
type Deps struct {
	Dial       DialFunc
	Capture    audio.CaptureDevice
	Player     audio.Player
	Dispatcher *alert.Dispatcher
	Sink       Sink
	Clock      func() time.Time
}

// Monitor is the session controller. All exported methods are safe for
// concurrent use.
type Monitor struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	scheduler *audio.Scheduler
	recorder  *audio.Recorder

	mu          sync.Mutex
	state       SessionState
	risk        RiskState
	transcript  *Transcript
	sessionID   string
	startedAt   time.Time
	escalated   bool
	upstream    Upstream
	sessionDone chan struct{}
}

// New creates a monitor in the idle state.
func New(cfg Config, deps Deps) *Monitor {
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}
	if len(cfg.Vocabulary) == 0 {
		cfg.Vocabulary = DefaultVocabulary
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Monitor{
		cfg:        cfg,
		deps:       deps,
		logger:     cfg.Logger,
		scheduler:  audio.NewSchedulerWithClock(audio.PlaybackFormat(), deps.Clock),
		recorder:   audio.NewRecorder(audio.CaptureFormat()),
		transcript: NewTranscriptWithClock(deps.Clock),
	}
}

// Start opens a monitoring session. Starting while a session is connecting
// or active is a no-op, so concurrent start requests yield one session.
// The capture device is opened before the upstream dial; either failure
// returns the monitor to idle.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		m.logger.Debug().Stringer("state", m.state).Msg("start ignored")
		return nil
	}
	m.state = StateConnecting

	// A new session starts from a clean slate.
	m.risk = RiskState{}
	m.escalated = false
	m.transcript = NewTranscriptWithClock(m.deps.Clock)
	m.startedAt = m.deps.Clock()
	m.sessionID = newSessionID(m.startedAt)
	sessionID := m.sessionID
	m.mu.Unlock()

	m.deps.Dispatcher.Reset()
	m.scheduler.Reset()
	m.recorder.Start()

	if err := m.deps.Capture.Start(ctx, m.handleFrame); err != nil {
		m.recorder.Stop()
		m.setState(StateIdle)
		return core.NewPermissionDeniedError("audio capture unavailable: " + err.Error())
	}

	upstream, err := m.deps.Dial(ctx, live.Config{
		Endpoint:          m.cfg.Endpoint,
		APIKey:            m.cfg.APIKey,
		Model:             m.cfg.Model,
		SystemInstruction: m.cfg.SystemInstruction,
		VoiceName:         m.cfg.VoiceName,
		Tools:             []live.Tool{updateRiskDeclaration()},
		Logger:            m.logger,
	})
	if err != nil {
		_ = m.deps.Capture.Stop()
		m.recorder.Stop()
		m.setState(StateIdle)
		return err
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.upstream = upstream
	m.sessionDone = done
	m.state = StateActive
	m.mu.Unlock()

	if m.deps.Sink != nil {
		if err := m.deps.Sink.StartCall(ctx, sessionID); err != nil {
			m.logger.Warn().Err(err).Msg("archive start failed")
		}
	}

	m.logger.Info().Str("session_id", sessionID).Msg("session active")
	go m.run(upstream, sessionID, done)
	return nil
}

// Stop ends the active session and returns the monitor to idle. Stopping
// an idle monitor is a no-op.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return nil
	}
	upstream := m.upstream
	done := m.sessionDone
	m.mu.Unlock()

	if upstream != nil {
		_ = upstream.Close()
	}
	if done != nil {
		<-done
	}
	return nil
}

// State returns the current session state.
func (m *Monitor) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Risk returns the current risk assessment.
func (m *Monitor) Risk() RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.risk
}

// SessionID returns the identifier of the current or most recent session.
func (m *Monitor) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Elapsed returns how long the current session has been running, or zero
// when idle.
func (m *Monitor) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle {
		return 0
	}
	return m.deps.Clock().Sub(m.startedAt)
}

// Escalated reports whether the session has crossed the danger threshold.
// The flag is latched for the rest of the session and cleared on stop.
func (m *Monitor) Escalated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escalated
}

// Snapshot is the observable state consumed by a presentation layer.
type Snapshot struct {
	State      SessionState
	SessionID  string
	Elapsed    time.Duration
	Risk       RiskState
	Escalated  bool
	Transcript []Entry
}

// Snapshot returns a consistent view of the session for display.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	snap := Snapshot{
		State:     m.state,
		SessionID: m.sessionID,
		Risk:      m.risk,
		Escalated: m.escalated,
	}
	if m.state != StateIdle {
		snap.Elapsed = m.deps.Clock().Sub(m.startedAt)
	}
	t := m.transcript
	m.mu.Unlock()

	snap.Transcript = t.Entries()
	return snap
}

// Transcript returns committed transcript entries in order.
func (m *Monitor) Transcript() []Entry {
	m.mu.Lock()
	t := m.transcript
	m.mu.Unlock()
	return t.Entries()
}

// HighlightEntry splits an entry's text into plain and flagged segments
// using the configured vocabulary.
func (m *Monitor) HighlightEntry(e Entry) []Segment {
	return Highlight(e.Text, m.cfg.Vocabulary)
}

// Recording returns the caller-side audio of the current or most recent
// session as a WAV file.
func (m *Monitor) Recording() []byte {
	return m.recorder.WAV()
}

// RestartRecording discards the evidence captured so far and begins a
// fresh recording on the same capture stream. The session must be active.
func (m *Monitor) RestartRecording() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return core.NewInvalidStateError("cannot restart recording while " + m.state.String())
	}
	m.recorder.Start()
	m.logger.Info().Str("session_id", m.sessionID).Msg("recording restarted")
	return nil
}

func (m *Monitor) setState(s SessionState) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev != s {
		m.logger.Debug().Stringer("from", prev).Stringer("to", s).Msg("state changed")
	}
}

// handleFrame forwards one captured frame to the recorder and upstream.
func (m *Monitor) handleFrame(samples []float32) {
	m.mu.Lock()
	upstream := m.upstream
	active := m.state == StateActive
	m.mu.Unlock()

	m.recorder.WriteFrame(samples)
	if !active || upstream == nil {
		return
	}
	if err := upstream.SendAudioFrame(samples); err != nil {
		m.logger.Warn().Err(err).Msg("dropping audio frame")
	}
}

// run consumes upstream events until the session ends, then tears the
// session down and returns the monitor to idle.
func (m *Monitor) run(upstream Upstream, sessionID string, done chan struct{}) {
	status := "completed"

	for event := range upstream.Events() {
		switch e := event.(type) {
		case *live.TranscriptChunkEvent:
			m.mu.Lock()
			t := m.transcript
			m.mu.Unlock()
			t.Append(SenderCaller, e.Text)

		case *live.AudioChunkEvent:
			buf := m.scheduler.Schedule(audio.DecodePCM(e.Data))
			if err := m.deps.Player.Play(buf); err != nil {
				m.logger.Warn().Err(err).Msg("dropping playback buffer")
			}

		case *live.ToolCallEvent:
			m.handleToolCall(upstream, sessionID, e)

		case *live.InterruptedEvent:
			m.deps.Player.Flush()
			m.scheduler.Reset()

		case *live.GoAwayEvent:
			m.logger.Warn().Str("time_left", e.TimeLeft).Msg("upstream going away")

		case *live.ClosedEvent:
			if e.Err != nil {
				status = "dropped"
				m.logger.Error().Err(e.Err).Str("session_id", sessionID).Msg("session dropped")
			}
		}
	}

	_ = m.deps.Capture.Stop()
	m.recorder.Stop()
	m.deps.Player.Flush()

	m.mu.Lock()
	finalScore := m.risk.Score
	m.upstream = nil
	m.state = StateIdle
	m.escalated = false
	m.mu.Unlock()

	if m.deps.Sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.deps.Sink.FinishCall(ctx, sessionID, finalScore, status); err != nil {
			m.logger.Warn().Err(err).Msg("archive finish failed")
		}
		cancel()
	}

	m.logger.Info().Str("session_id", sessionID).Str("status", status).Msg("session ended")
	close(done)
}

// handleToolCall applies an updateRisk call and acknowledges it. Every
// call is acknowledged, including unknown names and malformed arguments,
// so the model never stalls waiting on a response.
func (m *Monitor) handleToolCall(upstream Upstream, sessionID string, call *live.ToolCallEvent) {
	defer func() {
		err := upstream.SendToolResponse(live.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: map[string]any{"ok": true},
		})
		if err != nil {
			m.logger.Warn().Err(err).Str("tool", call.Name).Msg("tool ack failed")
		}
	}()

	if call.Name != UpdateRiskTool {
		m.logger.Warn().Str("tool", call.Name).Msg("ignoring unknown tool call")
		return
	}

	next, message, err := parseRiskUpdate(call.Args)
	if err != nil {
		m.logger.Warn().Err(err).Msg("ignoring malformed risk update")
		return
	}

	// The new assessment replaces the old one wholesale; signals absent
	// from the call are cleared.
	danger := next.Danger()
	m.mu.Lock()
	m.risk = next
	if danger {
		m.escalated = true
	}
	m.mu.Unlock()
	m.logger.Info().
		Int("score", next.Score).
		Bool("danger", danger).
		Msg("risk updated")

	if strings.TrimSpace(message) != "" {
		delivered := m.deps.Dispatcher.Notify(message, danger)
		if delivered && m.deps.Sink != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.deps.Sink.RecordAlert(ctx, sessionID, message, next.Score, danger); err != nil {
				m.logger.Warn().Err(err).Msg("archive alert failed")
			}
			cancel()
		}
	}
}

func updateRiskDeclaration() live.Tool {
	return live.Tool{
		FunctionDeclarations: []live.FunctionDeclaration{{
			Name:        UpdateRiskTool,
			Description: "Report the current scam risk assessment for the call.",
			Parameters: &live.Schema{
				Type: "object",
				Properties: map[string]*live.Schema{
					"score":         {Type: "number", Description: "Risk score from 0 to 100."},
					"alertMessage":  {Type: "string", Description: "Short warning to show the callee."},
					"impersonation": {Type: "boolean"},
					"urgency":       {Type: "boolean"},
					"financial":     {Type: "boolean"},
					"manipulation":  {Type: "boolean"},
				},
				Required: []string{"score"},
			},
		}},
	}
}

func newSessionID(now time.Time) string {
	entropy := rand.New(rand.NewSource(now.UnixNano()))
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}
