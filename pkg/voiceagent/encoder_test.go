package voiceagent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAudioChunk(t *testing.T) {
	enc := NewEncoder(nil)

	data, err := enc.EncodeAudioChunk("YWJj")
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_audio_chunk":"YWJj"}`, string(data))
}

func TestEncodeConversationStart(t *testing.T) {
	enc := NewEncoder(NewAudioConfig())

	data, err := enc.EncodeConversationStart()
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "conversation_start", frame["type"])

	config, ok := frame["conversation_config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "streaming", config["mode"])
	assert.Equal(t, "pcm_16000", config["audio_format"])
	assert.Equal(t, float64(16000), config["sample_rate"])
	assert.Equal(t, true, config["enable_response_audio"])
}

func TestEncodePong(t *testing.T) {
	enc := NewEncoder(nil)

	data, err := enc.EncodePong(42)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","event_id":42}`, string(data))
}
