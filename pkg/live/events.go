package live

import "encoding/json"

// Event is emitted by Session.Events().
type Event interface {
	EventType() string
}

// TranscriptChunkEvent carries a fragment of recognized caller speech.
type TranscriptChunkEvent struct {
	Text string
}

func (e *TranscriptChunkEvent) EventType() string { return "transcript_chunk" }

// AudioChunkEvent carries a decoded chunk of model audio as raw PCM.
type AudioChunkEvent struct {
	Data     []byte
	MimeType string
}

func (e *AudioChunkEvent) EventType() string { return "audio_chunk" }

// ToolCallEvent carries a single function invocation from the model.
type ToolCallEvent struct {
	ID   string
	Name string
	Args json.RawMessage
}

func (e *ToolCallEvent) EventType() string { return "tool_call" }

// TurnCompleteEvent marks the end of a model turn.
type TurnCompleteEvent struct{}

func (e *TurnCompleteEvent) EventType() string { return "turn_complete" }

// InterruptedEvent signals that queued model audio was cut off and any
// buffered playback should be flushed.
type InterruptedEvent struct{}

func (e *InterruptedEvent) EventType() string { return "interrupted" }

// GoAwayEvent warns the server will close the connection shortly.
type GoAwayEvent struct {
	TimeLeft string
}

func (e *GoAwayEvent) EventType() string { return "go_away" }

// ClosedEvent is the final event before the channel closes.
type ClosedEvent struct {
	// Err is non-nil when the session ended abnormally.
	Err error
}

func (e *ClosedEvent) EventType() string { return "closed" }
