package voiceagent

import "time"

// ConnectionState enum
type ConnectionState string

const (
	ConnIdle       ConnectionState = "idle"
	ConnConnecting ConnectionState = "connecting"
	ConnOpen       ConnectionState = "open"
	ConnClosed     ConnectionState = "closed"
	ConnErrored    ConnectionState = "errored"
)

// StreamerState enum
type StreamerState string

const (
	StreamerIdle      StreamerState = "idle"
	StreamerStarting  StreamerState = "starting"
	StreamerStreaming StreamerState = "streaming"
	StreamerStopping  StreamerState = "stopping"
	StreamerErroring  StreamerState = "erroring"
)

// Event names published on the event channel. UI consumers subscribe to
// these; components never reach into each other's state directly.
const (
	EventStarted                 = "started"
	EventStopped                 = "stopped"
	EventError                   = "error"
	EventReady                   = "ready"
	EventClose                   = "close"
	EventAudioData               = "audioData"
	EventConversationInitialized = "conversationInitialized"
	EventAgentResponse           = "agentResponse"
	EventUserTranscript          = "userTranscript"
)

// AgentError represents an error with an error code and optional context.
type AgentError struct {
	Message   string
	Code      string
	Timestamp time.Time
	Details   map[string]interface{}
}

func (e *AgentError) Error() string {
	return e.Message
}

func NewAgentError(message, code string) *AgentError {
	return &AgentError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// WSToken is a short-lived token minted from the API credential and carried
// on the websocket dial.
type WSToken struct {
	Token     string
	ExpiresAt int64 // Unix timestamp in milliseconds
}

// Handler types
type EventHandler func(payload any)
type ErrorHandler func(*AgentError)
