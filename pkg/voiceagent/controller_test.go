package voiceagent

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, endpoint string) (*VoiceSession, *fakeRecorder, *fakePlayer) {
	t.Helper()
	config := &Config{
		Endpoint:       endpoint,
		AgentID:        "agent-test",
		ConnectTimeout: 2 * time.Second,
	}
	recorder := newFakeRecorder()
	player := newFakePlayer()
	session := NewVoiceSession(config, testAudioConfig(), recorder, player, nil)
	t.Cleanup(session.Cleanup)
	return session, recorder, player
}

// Start wires the whole pipeline: the connection opens, capture begins, and
// a captured chunk travels out as a user_audio_chunk frame.
func TestSessionStartCapturesAndSends(t *testing.T) {
	server := newWSTestServer(t)
	session, recorder, _ := newTestSession(t, server.endpoint())

	require.NoError(t, session.Start())
	assert.True(t, session.IsConnected())
	assert.True(t, session.IsListening())
	assert.Equal(t, 1, recorder.sessionCount())

	frame := server.nextFrame(t)
	assert.Equal(t, "conversation_start", frame["type"])

	pcm := []byte("0123456789abcdef")
	recorder.lastSession().setData(pcm)
	session.streamer.ProcessChunk()

	frame = server.nextFrame(t)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pcm), frame["user_audio_chunk"])
}

// Stopping listening leaves the conversation alive: the connection stays
// open and a second stop is a no-op.
func TestSessionStopKeepsConnectionOpen(t *testing.T) {
	server := newWSTestServer(t)
	session, _, _ := newTestSession(t, server.endpoint())

	require.NoError(t, session.Start())
	require.NoError(t, session.Stop())

	assert.False(t, session.IsListening())
	assert.True(t, session.IsConnected())

	require.NoError(t, session.Stop())
	assert.True(t, session.IsConnected())
}

func TestSessionStopBeforeStart(t *testing.T) {
	session, _, _ := newTestSession(t, "ws://127.0.0.1:1/never")
	assert.NoError(t, session.Stop())
}

func TestSessionStartConnectFailure(t *testing.T) {
	session, recorder, _ := newTestSession(t, "ws://127.0.0.1:1/never")

	err := session.Start()
	require.Error(t, err)
	assert.False(t, session.IsConnected())
	assert.False(t, session.IsListening())
	assert.Equal(t, 0, recorder.sessionCount(), "capture must not start without a connection")
}

func TestSessionStartCaptureFailureTearsDown(t *testing.T) {
	server := newWSTestServer(t)
	session, recorder, _ := newTestSession(t, server.endpoint())
	recorder.permissionErr = NewPermissionError("microphone denied")

	err := session.Start()
	require.Error(t, err)
	assert.False(t, session.IsListening())
}

func TestResetConversationStartsFresh(t *testing.T) {
	server := newWSTestServer(t)
	session, _, _ := newTestSession(t, server.endpoint())

	require.NoError(t, session.Start())
	server.nextFrame(t) // session init

	server.send(t, `{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv-1"}}`)
	server.send(t, `{"type":"user_transcript","user_transcription_event":{"user_transcript":"remember this"}}`)
	require.True(t, waitUntil(time.Second, func() bool { return session.ConversationID() == "conv-1" }))

	require.NoError(t, session.ResetConversation())

	assert.False(t, session.IsListening(), "reset stops capture")
	assert.True(t, session.IsConnected(), "reset dials a fresh connection")
	assert.Equal(t, "", session.ConversationID(), "the new conversation has no id yet")
	transcripts, responses := session.Tracker().History()
	assert.Empty(t, transcripts)
	assert.Empty(t, responses)

	frame := server.nextFrame(t)
	assert.Equal(t, "conversation_start", frame["type"], "the fresh connection re-initializes the session")
}

func TestCleanupOnFreshSession(t *testing.T) {
	session, _, _ := newTestSession(t, "ws://127.0.0.1:1/never")
	assert.NotPanics(t, session.Cleanup)
}

func TestCleanupTearsDownEverything(t *testing.T) {
	server := newWSTestServer(t)
	session, _, player := newTestSession(t, server.endpoint())

	require.NoError(t, session.Start())
	session.Cleanup()

	assert.False(t, session.IsConnected())
	assert.False(t, session.IsListening())
	assert.GreaterOrEqual(t, player.stops, 1)
}
