package voiceagent

import "encoding/json"

// Outbound wire frames. The protocol is JSON over a persistent duplex
// websocket; audio chunks use the bare user_audio_chunk shape, control
// frames carry a type discriminant.

type audioChunkFrame struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

// ConversationConfig is the capability block sent in the session-init frame.
type ConversationConfig struct {
	ModelType           string `json:"model_type"`
	Mode                string `json:"mode"`
	AudioFormat         string `json:"audio_format"`
	SampleRate          int    `json:"sample_rate"`
	EnableResponseAudio bool   `json:"enable_response_audio"`
}

type conversationStartFrame struct {
	Type               string             `json:"type"`
	ConversationConfig ConversationConfig `json:"conversation_config"`
}

type pongFrame struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

// Encoder serializes audio chunks and control messages into the wire
// protocol expected by the voice service.
type Encoder struct {
	audioConfig *AudioConfig
}

func NewEncoder(audioConfig *AudioConfig) *Encoder {
	if audioConfig == nil {
		audioConfig = NewAudioConfig()
	}
	return &Encoder{audioConfig: audioConfig}
}

// EncodeAudioChunk wraps a base64 chunk in the chunk frame.
func (e *Encoder) EncodeAudioChunk(audioBase64 string) ([]byte, error) {
	return json.Marshal(audioChunkFrame{UserAudioChunk: audioBase64})
}

// EncodeConversationStart builds the session-initialization control frame
// sent immediately after the socket opens.
func (e *Encoder) EncodeConversationStart() ([]byte, error) {
	return json.Marshal(conversationStartFrame{
		Type: "conversation_start",
		ConversationConfig: ConversationConfig{
			ModelType:           "eleven_turbo_v2",
			Mode:                "streaming",
			AudioFormat:         "pcm_16000",
			SampleRate:          e.audioConfig.SampleRate,
			EnableResponseAudio: true,
		},
	})
}

// EncodePong builds the keepalive reply echoing the ping's event id.
func (e *Encoder) EncodePong(eventID int) ([]byte, error) {
	return json.Marshal(pongFrame{Type: "pong", EventID: eventID})
}
