// Package live implements the bidirectional audio websocket protocol used
// to stream a call to the analysis model and receive transcription, audio
// and tool calls back.
package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/shestorm/callguard/pkg/audio"
	"github.com/shestorm/callguard/pkg/core"
)

const (
	// DefaultEndpoint is the bidirectional generate-content websocket.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is the native-audio live model.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

	defaultConnectTimeout = 15 * time.Second
)

// Config describes a live session to open.
type Config struct {
	// Endpoint overrides the websocket URL. Defaults to DefaultEndpoint.
	Endpoint string

	// APIKey is appended as the key query parameter.
	APIKey string

	// Model defaults to DefaultModel.
	Model string

	// SystemInstruction primes the model before audio starts.
	SystemInstruction string

	// VoiceName selects the synthesized voice, if any.
	VoiceName string

	// Tools are the function declarations exposed to the model.
	Tools []Tool

	// Logger defaults to a disabled logger.
	Logger zerolog.Logger
}

// Session is an open live websocket session. Audio frames go up via
// SendAudioFrame; transcription, model audio and tool calls come back on
// Events(). The events channel closes when the session ends; Err reports
// the terminal error, if any.
type Session struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	events chan Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial opens a session: it connects, sends the setup frame and waits for
// the server's setup acknowledgment before returning.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, core.NewConnectionFailureError("invalid live endpoint", err)
	}
	if cfg.APIKey != "" {
		q := u.Query()
		q.Set("key", cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, core.NewConnectionFailureError(fmt.Sprintf("websocket dial failed (status %d)", resp.StatusCode), err)
		}
		return nil, core.NewConnectionFailureError("websocket dial failed", err)
	}

	setup := ClientMessage{Setup: buildSetup(model, cfg)}
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionFailureError("send setup", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(defaultConnectTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionFailureError("read setup ack", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var first ServerMessage
	if err := json.Unmarshal(payload, &first); err != nil {
		_ = conn.Close()
		return nil, core.NewProtocolViolationError("malformed setup ack")
	}
	if first.SetupComplete == nil {
		_ = conn.Close()
		return nil, core.NewProtocolViolationError("expected setup ack as first frame")
	}

	session := &Session{
		conn:   conn,
		logger: cfg.Logger,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	go session.readLoop()
	return session, nil
}

func buildSetup(model string, cfg Config) *Setup {
	setup := &Setup{
		Model: "models/" + strings.TrimPrefix(model, "models/"),
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		Tools:                   cfg.Tools,
		InputAudioTranscription: &struct{}{},
	}
	if system := strings.TrimSpace(cfg.SystemInstruction); system != "" {
		setup.SystemInstruction = &Content{Parts: []Part{{Text: system}}}
	}
	if voice := strings.TrimSpace(cfg.VoiceName); voice != "" {
		setup.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: &VoiceConfig{
				PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: voice},
			},
		}
	}
	return setup
}

// Events yields session events. The channel closes when the session ends.
func (s *Session) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.events
}

// SendAudioFrame encodes a frame of captured samples and streams it
// upstream as a media chunk.
func (s *Session) SendAudioFrame(samples []float32) error {
	if s == nil {
		return fmt.Errorf("session must not be nil")
	}
	msg := ClientMessage{
		RealtimeInput: &RealtimeInput{
			MediaChunks: []Inline{{
				MimeType: audio.CaptureFormat().MimeType(),
				Data:     audio.EncodeFrame(samples),
			}},
		},
	}
	return s.sendJSON(msg)
}

// SendToolResponse acknowledges a function call back to the model.
func (s *Session) SendToolResponse(resp FunctionResponse) error {
	if s == nil {
		return fmt.Errorf("session must not be nil")
	}
	msg := ClientMessage{
		ToolResponse: &ToolResponse{
			FunctionResponses: []FunctionResponse{resp},
		},
	}
	return s.sendJSON(msg)
}

func (s *Session) sendJSON(v any) error {
	if s.closed.Load() {
		return fmt.Errorf("live session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close closes the websocket session and waits for the read loop to exit.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err returns the terminal session error (if any).
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emitEvent(&ClosedEvent{})
				return
			}
			terminal := core.NewChannelFailureError("live stream dropped", err)
			s.setErr(terminal)
			s.emitEvent(&ClosedEvent{Err: terminal})
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("discarding malformed live frame")
			continue
		}
		s.dispatch(&msg)
	}
}

func (s *Session) dispatch(msg *ServerMessage) {
	if content := msg.ServerContent; content != nil {
		if content.InputTranscription != nil && content.InputTranscription.Text != "" {
			s.emitEvent(&TranscriptChunkEvent{Text: content.InputTranscription.Text})
		}
		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part.InlineData == nil {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					s.logger.Warn().Err(err).Msg("discarding undecodable audio part")
					continue
				}
				s.emitEvent(&AudioChunkEvent{Data: pcm, MimeType: part.InlineData.MimeType})
			}
		}
		if content.Interrupted {
			s.emitEvent(&InterruptedEvent{})
		}
		if content.TurnComplete {
			s.emitEvent(&TurnCompleteEvent{})
		}
	}
	if call := msg.ToolCall; call != nil {
		for _, fc := range call.FunctionCalls {
			s.emitEvent(&ToolCallEvent{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	if msg.GoAway != nil {
		s.emitEvent(&GoAwayEvent{TimeLeft: msg.GoAway.TimeLeft})
	}
}

func (s *Session) emitEvent(event Event) {
	if event == nil {
		return
	}
	select {
	case s.events <- event:
	default:
		// Avoid deadlocking read loop if caller stops consuming.
	}
}
