package live

import "encoding/json"

// Wire types for the bidirectional generate-content websocket protocol.
// Every frame in either direction is a JSON object with exactly one of the
// top-level fields set; field names are camelCase on the wire.

// ClientMessage is an outbound frame.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// ServerMessage is an inbound frame.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	ToolCall      *ToolCall      `json:"toolCall,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

// Setup is the first frame sent after the websocket opens. The session is
// not usable until the server answers with SetupComplete.
type Setup struct {
	Model             string            `json:"model"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`

	// InputAudioTranscription enables caller-side transcription frames.
	InputAudioTranscription *struct{} `json:"inputAudioTranscription,omitempty"`
}

// GenerationConfig selects output modalities for the session.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig selects the synthesized voice.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// Content is a list of parts with an optional role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a single content fragment: text or inline binary data.
type Part struct {
	Text       string  `json:"text,omitempty"`
	InlineData *Inline `json:"inlineData,omitempty"`
}

// Inline carries base64 media with its mime type.
type Inline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Tool declares callable functions to the model.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// FunctionDeclaration describes one callable function.
type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Schema is a JSON-schema subset for function parameters.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// RealtimeInput streams media chunks upstream mid-session.
type RealtimeInput struct {
	MediaChunks []Inline `json:"mediaChunks,omitempty"`
}

// ToolResponse acknowledges tool calls back to the model.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses,omitempty"`
}

// FunctionResponse is the result of one function call.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// SetupComplete confirms the session is live.
type SetupComplete struct{}

// ServerContent carries model output and caller transcription.
type ServerContent struct {
	ModelTurn          *Content       `json:"modelTurn,omitempty"`
	InputTranscription *Transcription `json:"inputTranscription,omitempty"`
	TurnComplete       bool           `json:"turnComplete,omitempty"`
	Interrupted        bool           `json:"interrupted,omitempty"`
}

// Transcription is a fragment of recognized caller speech.
type Transcription struct {
	Text string `json:"text,omitempty"`
}

// ToolCall requests execution of one or more declared functions.
type ToolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls,omitempty"`
}

// FunctionCall is a single function invocation with decoded arguments.
type FunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// GoAway warns that the server is about to close the connection.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}
