package voiceagent

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const wavHeaderSize = 44

// AudioReceiver sequences playback of decoded audio payloads: enqueue never
// blocks, items drain in arrival order, and at most one item is ever loaded
// and playing. A decode or playback error for one item is logged and the
// drain continues with the next.
type AudioReceiver struct {
	config  *AudioConfig
	player  Player
	emitter *Emitter
	log     *Logger

	mu        sync.Mutex
	queue     []string
	isPlaying bool
}

func NewAudioReceiver(config *AudioConfig, player Player, emitter *Emitter, log *Logger) *AudioReceiver {
	if config == nil {
		config = NewAudioConfig()
	}
	if emitter == nil {
		emitter = NewEmitter(log)
	}
	return &AudioReceiver{
		config:  config,
		player:  player,
		emitter: emitter,
		log:     orNop(log).WithComponent("receiver"),
	}
}

// HandleAudioResponse appends a base64 payload to the playback queue and
// starts the drainer if nothing is currently playing. It returns without
// waiting for playback.
func (ar *AudioReceiver) HandleAudioResponse(audioBase64 string) {
	ar.mu.Lock()
	ar.queue = append(ar.queue, audioBase64)
	depth := len(ar.queue)
	start := !ar.isPlaying
	if start {
		ar.isPlaying = true
	}
	ar.mu.Unlock()

	ar.log.LogAudioEvent("queued", map[string]interface{}{
		"payload_chars": len(audioBase64),
		"queue_depth":   depth,
	})

	if start {
		go ar.drain()
	}
}

// drain pops the queue head and plays it to completion, one item at a time,
// until the queue is empty. Exactly one drainer runs at a time.
func (ar *AudioReceiver) drain() {
	for {
		ar.mu.Lock()
		if len(ar.queue) == 0 {
			ar.isPlaying = false
			ar.mu.Unlock()
			return
		}
		payload := ar.queue[0]
		ar.queue = ar.queue[1:]
		ar.mu.Unlock()

		if err := ar.playOne(payload); err != nil {
			agentErr := WrapError(err, ErrCodePlayback)
			ar.log.LogAgentError(agentErr)
			ar.emitter.Publish(EventError, agentErr)
		}
	}
}

func (ar *AudioReceiver) playOne(audioBase64 string) error {
	pcm, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	wav := make([]byte, 0, wavHeaderSize+len(pcm))
	wav = append(wav, ar.wavHeader(len(pcm))...)
	wav = append(wav, pcm...)

	path := filepath.Join(os.TempDir(), fmt.Sprintf("agent_audio_%s.wav", uuid.NewString()))
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return fmt.Errorf("write temp audio: %w", err)
	}
	defer os.Remove(path)

	// Release any lingering resource before loading the next item.
	if err := ar.player.Stop(); err != nil {
		ar.log.WithError(err).Warn("failed to release previous playback")
	}

	ar.log.LogAudioEvent("playing", map[string]interface{}{
		"pcm_bytes": len(pcm),
		"path":      path,
	})

	if err := ar.player.Play(path); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// wavHeader synthesizes the minimal RIFF/WAVE container header the platform
// player expects: mono, 16-bit PCM at the configured sample rate.
func (ar *AudioReceiver) wavHeader(dataLength int) []byte {
	numChannels := ar.config.Channels
	sampleRate := ar.config.SampleRate
	bitsPerSample := ar.config.BitsPerSample
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	header := make([]byte, wavHeaderSize)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+dataLength))
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:], uint16(numChannels))
	binary.LittleEndian.PutUint32(header[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:], uint16(bitsPerSample))
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(dataLength))
	return header
}

// QueueDepth returns the number of payloads waiting to play.
func (ar *AudioReceiver) QueueDepth() int {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	return len(ar.queue)
}

// IsPlaying reports whether the drainer is active.
func (ar *AudioReceiver) IsPlaying() bool {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	return ar.isPlaying
}

// Cleanup releases the currently loaded playback resource and discards any
// queued items. Safe to call when nothing is loaded.
func (ar *AudioReceiver) Cleanup() {
	ar.mu.Lock()
	ar.queue = nil
	ar.mu.Unlock()

	if err := ar.player.Stop(); err != nil {
		ar.log.WithError(err).Warn("failed to release playback on cleanup")
	}
}
