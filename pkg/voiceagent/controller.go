package voiceagent

import (
	"sync"
	"time"
)

const connectPollInterval = 100 * time.Millisecond

// VoiceSession coordinates the capture streamer, the duplex connection and
// the playback sequencer for a single user-facing listen session. Consumers
// subscribe to events via Events() and drive the session with Start, Stop
// and ResetConversation.
type VoiceSession struct {
	config      *Config
	audioConfig *AudioConfig
	recorder    Recorder
	player      Player
	log         *Logger

	emitter  *Emitter
	encoder  *Encoder
	tracker  *ConversationTracker
	receiver *AudioReceiver

	mu        sync.Mutex
	conn      *Connection
	streamer  *AudioStreamer
	unsubSend func()
}

func NewVoiceSession(config *Config, audioConfig *AudioConfig, recorder Recorder, player Player, log *Logger) *VoiceSession {
	if config == nil {
		config = NewConfig()
	}
	if audioConfig == nil {
		audioConfig = NewAudioConfig()
	}
	log = orNop(log)

	emitter := NewEmitter(log)
	encoder := NewEncoder(audioConfig)
	tracker := NewConversationTracker()
	receiver := NewAudioReceiver(audioConfig, player, emitter, log)

	return &VoiceSession{
		config:      config,
		audioConfig: audioConfig,
		recorder:    recorder,
		player:      player,
		log:         log.WithComponent("session"),
		emitter:     emitter,
		encoder:     encoder,
		tracker:     tracker,
		receiver:    receiver,
	}
}

// Events exposes the session's event channel for UI consumption.
func (vs *VoiceSession) Events() *Emitter {
	return vs.emitter
}

// Tracker returns the transcript accumulator for this session.
func (vs *VoiceSession) Tracker() *ConversationTracker {
	return vs.tracker
}

// Start connects to the voice service, waits (bounded) for the connection
// to open, then starts audio capture with captured chunks wired to the
// connection. On a connection timeout the partially started state is torn
// down via Stop.
func (vs *VoiceSession) Start() error {
	conn, streamer := vs.ensureComponents()

	if err := conn.Connect(); err != nil {
		vs.log.WithError(err).Error("failed to connect")
		vs.Stop()
		return err
	}

	if err := vs.waitForConnection(conn); err != nil {
		vs.emitter.PublishError(err)
		vs.Stop()
		return err
	}

	if err := streamer.Start(); err != nil {
		vs.log.WithError(err).Error("failed to start capture")
		vs.Stop()
		return err
	}

	return nil
}

// ensureComponents lazily constructs the connection and streamer and wires
// captured chunks to the outbound send path.
func (vs *VoiceSession) ensureComponents() (*Connection, *AudioStreamer) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.conn == nil {
		vs.conn = NewConnection(vs.config, vs.encoder, vs.receiver, vs.tracker, vs.emitter, vs.log)
	}
	if vs.streamer == nil {
		vs.streamer = NewAudioStreamer(vs.config, vs.audioConfig, vs.recorder, vs.emitter, vs.log)
	}
	if vs.unsubSend == nil {
		conn := vs.conn
		vs.unsubSend = vs.emitter.Subscribe(EventAudioData, func(payload any) {
			chunk, ok := payload.(string)
			if !ok {
				return
			}
			data, err := vs.encoder.EncodeAudioChunk(chunk)
			if err != nil {
				vs.log.WithError(err).Error("failed to encode audio chunk")
				return
			}
			if err := conn.Send(data); err != nil {
				vs.log.WithError(err).Warn("failed to send audio chunk")
			}
		})
	}
	return vs.conn, vs.streamer
}

func (vs *VoiceSession) waitForConnection(conn *Connection) *AgentError {
	deadline := time.Now().Add(vs.config.ConnectTimeout)
	for {
		if conn.IsConnected() {
			return nil
		}
		if time.Now().After(deadline) {
			return NewConnectionTimeoutError("timed out waiting for connection").
				AddDetail("timeout", vs.config.ConnectTimeout.String())
		}
		time.Sleep(connectPollInterval)
	}
}

// Stop halts audio capture. The connection stays open: stopping listening
// does not end the conversation.
func (vs *VoiceSession) Stop() error {
	vs.mu.Lock()
	streamer := vs.streamer
	vs.mu.Unlock()

	if streamer == nil {
		return nil
	}
	return streamer.Stop()
}

// ResetConversation starts a logically new conversation: capture stops, the
// connection is discarded entirely and a fresh one is dialed.
func (vs *VoiceSession) ResetConversation() error {
	if err := vs.Stop(); err != nil {
		vs.log.WithError(err).Warn("stop during reset")
	}

	vs.mu.Lock()
	conn := vs.conn
	vs.conn = nil
	if vs.unsubSend != nil {
		vs.unsubSend()
		vs.unsubSend = nil
	}
	vs.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
	vs.tracker.Clear()

	conn, _ = vs.ensureComponents()
	if err := conn.Connect(); err != nil {
		return err
	}
	return nil
}

// ConversationID returns the id the service assigned to the current
// conversation, empty before initialization.
func (vs *VoiceSession) ConversationID() string {
	vs.mu.Lock()
	conn := vs.conn
	vs.mu.Unlock()
	if conn == nil {
		return ""
	}
	return conn.ConversationID()
}

// IsConnected reports whether the duplex connection is open.
func (vs *VoiceSession) IsConnected() bool {
	vs.mu.Lock()
	conn := vs.conn
	vs.mu.Unlock()
	return conn != nil && conn.IsConnected()
}

// IsListening reports whether audio capture is active.
func (vs *VoiceSession) IsListening() bool {
	vs.mu.Lock()
	streamer := vs.streamer
	vs.mu.Unlock()
	return streamer != nil && streamer.IsStreaming()
}

// Cleanup tears down the whole session: playback resources, the connection
// and the capture streamer, tolerating any of them being absent or already
// torn down.
func (vs *VoiceSession) Cleanup() {
	vs.receiver.Cleanup()

	vs.mu.Lock()
	conn := vs.conn
	streamer := vs.streamer
	vs.conn = nil
	vs.streamer = nil
	if vs.unsubSend != nil {
		vs.unsubSend()
		vs.unsubSend = nil
	}
	vs.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
	if streamer != nil {
		if err := streamer.Stop(); err != nil {
			vs.log.WithError(err).Warn("streamer stop during cleanup")
		}
	}
	vs.log.Info("session cleaned up")
}
