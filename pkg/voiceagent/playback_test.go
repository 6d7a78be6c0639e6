package voiceagent

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReceiver(player Player) *AudioReceiver {
	return NewAudioReceiver(testAudioConfig(), player, NewEmitter(nil), nil)
}

// N payloads arriving while the first is still playing all play, one at a
// time, in enqueue order.
func TestSequencerSingleSerialPlayback(t *testing.T) {
	player := newFakePlayer()
	player.holdPlayback()
	receiver := newTestReceiver(player)

	const n = 5
	var want [][]byte
	for i := 0; i < n; i++ {
		payload := []byte(fmt.Sprintf("payload-%d", i))
		want = append(want, payload)
		receiver.HandleAudioResponse(base64.StdEncoding.EncodeToString(payload))
	}

	require.True(t, waitUntil(time.Second, func() bool { return player.playCount() == 1 }),
		"first item should start playing")
	assert.Equal(t, n-1, receiver.QueueDepth(), "remaining items stay queued")

	for i := 0; i < n; i++ {
		player.releaseOne()
	}

	require.True(t, waitUntil(time.Second, func() bool { return player.playCount() == n }))
	require.True(t, waitUntil(time.Second, func() bool { return !receiver.IsPlaying() }))

	assert.Equal(t, 1, player.maxSeen(), "never more than one item loaded at a time")

	player.mu.Lock()
	payloads := append([][]byte(nil), player.payloads...)
	player.mu.Unlock()
	require.Len(t, payloads, n)
	for i, data := range payloads {
		require.Greater(t, len(data), wavHeaderSize)
		assert.Equal(t, want[i], data[wavHeaderSize:], "items must play in enqueue order")
	}
}

// An audio frame arriving before the first finishes is queued and only
// begins after the first's completion.
func TestSecondItemWaitsForFirst(t *testing.T) {
	player := newFakePlayer()
	player.holdPlayback()
	receiver := newTestReceiver(player)

	receiver.HandleAudioResponse(base64.StdEncoding.EncodeToString([]byte("first")))
	receiver.HandleAudioResponse(base64.StdEncoding.EncodeToString([]byte("second")))

	require.True(t, waitUntil(time.Second, func() bool { return player.playCount() == 1 }))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, player.playCount(), "second item must not start while first is playing")
	assert.Equal(t, 1, receiver.QueueDepth())

	player.releaseOne()
	require.True(t, waitUntil(time.Second, func() bool { return player.playCount() == 2 }))
	player.releaseOne()
	require.True(t, waitUntil(time.Second, func() bool { return !receiver.IsPlaying() }))
}

func TestSequencerContinuesAfterBadItem(t *testing.T) {
	player := newFakePlayer()
	receiver := newTestReceiver(player)

	receiver.HandleAudioResponse("!!!not-base64!!!")
	receiver.HandleAudioResponse(base64.StdEncoding.EncodeToString([]byte("good")))

	require.True(t, waitUntil(time.Second, func() bool { return player.playCount() == 1 }),
		"a decode error must not halt the sequencer")
	require.True(t, waitUntil(time.Second, func() bool { return !receiver.IsPlaying() }))
}

func TestSequencerContinuesAfterPlayError(t *testing.T) {
	player := newFakePlayer()
	player.playErr = NewPlaybackError("device gone")
	receiver := newTestReceiver(player)

	receiver.HandleAudioResponse(base64.StdEncoding.EncodeToString([]byte("a")))
	receiver.HandleAudioResponse(base64.StdEncoding.EncodeToString([]byte("b")))

	require.True(t, waitUntil(time.Second, func() bool { return player.playCount() == 2 }),
		"a playback error must not halt the drain")
	require.True(t, waitUntil(time.Second, func() bool { return !receiver.IsPlaying() }))
}

func TestCleanupSafeWhenIdle(t *testing.T) {
	player := newFakePlayer()
	receiver := newTestReceiver(player)

	assert.NotPanics(t, func() { receiver.Cleanup() })
	assert.GreaterOrEqual(t, player.stops, 1)
}

func TestCleanupDiscardsQueue(t *testing.T) {
	player := newFakePlayer()
	player.holdPlayback()
	receiver := newTestReceiver(player)

	receiver.HandleAudioResponse(base64.StdEncoding.EncodeToString([]byte("a")))
	receiver.HandleAudioResponse(base64.StdEncoding.EncodeToString([]byte("b")))
	require.True(t, waitUntil(time.Second, func() bool { return player.playCount() == 1 }))

	receiver.Cleanup()
	assert.Equal(t, 0, receiver.QueueDepth())

	player.releaseOne()
	require.True(t, waitUntil(time.Second, func() bool { return !receiver.IsPlaying() }))
	assert.Equal(t, 1, player.playCount(), "queued items discarded by cleanup must not play")
}

// A receiver built with a nil emitter still reports per-item errors
// without panicking.
func TestReceiverNilEmitter(t *testing.T) {
	receiver := NewAudioReceiver(testAudioConfig(), newFakePlayer(), nil, nil)

	assert.NotPanics(t, func() {
		receiver.HandleAudioResponse("!!!not-base64!!!")
		require.True(t, waitUntil(time.Second, func() bool { return !receiver.IsPlaying() }))
	})
}

func TestWavHeaderFormat(t *testing.T) {
	receiver := newTestReceiver(newFakePlayer())

	header := receiver.wavHeader(1000)
	require.Len(t, header, wavHeaderSize)

	assert.Equal(t, "RIFF", string(header[0:4]))
	assert.Equal(t, "WAVE", string(header[8:12]))
	assert.Equal(t, "fmt ", string(header[12:16]))
	assert.Equal(t, "data", string(header[36:40]))

	assert.Equal(t, uint32(36+1000), binary.LittleEndian.Uint32(header[4:]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(header[20:]), "PCM format")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(header[22:]), "mono")
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(header[24:]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(header[28:]), "byte rate")
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(header[32:]), "block align")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(header[34:]))
	assert.Equal(t, uint32(1000), binary.LittleEndian.Uint32(header[40:]))
}
