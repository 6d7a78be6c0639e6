package voiceagent

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	stopWaitMax  = 2 * time.Second
	stopWaitPoll = 20 * time.Millisecond
)

// AudioStreamer owns the microphone recording lifecycle: it starts a
// recording session, periodically drains the buffer as a chunk, and rotates
// to a fresh session to bound single-segment duration and memory.
//
// State machine: Idle -> Starting -> Streaming -> Stopping -> Idle, with
// -> Erroring -> Idle on a failed start. Rotation happens within Streaming,
// tracked by a guard flag; chunk processing carries its own guard and
// rotation never runs concurrently with a processing pass.
type AudioStreamer struct {
	config      *Config
	audioConfig *AudioConfig
	recorder    Recorder
	emitter     *Emitter
	log         *Logger

	mu           sync.Mutex
	state        StreamerState
	session      RecordingSession
	isProcessing bool
	isRotating   bool
	stopTicker   chan struct{}
	debugCounter int
}

func NewAudioStreamer(config *Config, audioConfig *AudioConfig, recorder Recorder, emitter *Emitter, log *Logger) *AudioStreamer {
	if config == nil {
		config = NewConfig()
	}
	if audioConfig == nil {
		audioConfig = NewAudioConfig()
	}
	if emitter == nil {
		emitter = NewEmitter(log)
	}
	return &AudioStreamer{
		config:      config,
		audioConfig: audioConfig,
		recorder:    recorder,
		emitter:     emitter,
		state:       StreamerIdle,
		log:         orNop(log).WithComponent("streamer"),
	}
}

// Start requests microphone permission, configures the audio input mode,
// creates a recording session and begins the interval-driven chunk
// processing. Calling Start while not Idle is a no-op.
func (s *AudioStreamer) Start() error {
	s.mu.Lock()
	if s.state != StreamerIdle {
		s.mu.Unlock()
		s.log.Debug("start ignored: streamer not idle")
		return nil
	}
	s.state = StreamerStarting
	s.mu.Unlock()

	if err := s.recorder.RequestPermission(); err != nil {
		agentErr := asAgentError(err, ErrCodePermissionDenied)
		s.failStart(agentErr)
		return agentErr
	}

	if err := s.configureWithRetry(); err != nil {
		s.failStart(err)
		return err
	}

	session, err := s.createSessionWithRetry()
	if err != nil {
		s.failStart(err)
		return err
	}

	s.mu.Lock()
	s.session = session
	s.state = StreamerStreaming
	s.stopTicker = make(chan struct{})
	stop := s.stopTicker
	s.mu.Unlock()

	go s.tickLoop(stop)

	s.log.Info("streaming started")
	s.emitter.Publish(EventStarted, nil)
	return nil
}

// failStart reports a start failure and returns the streamer to Idle so the
// caller can retry.
func (s *AudioStreamer) failStart(err *AgentError) {
	s.mu.Lock()
	s.state = StreamerErroring
	s.mu.Unlock()
	s.emitter.PublishError(err)
	s.mu.Lock()
	s.state = StreamerIdle
	s.mu.Unlock()
}

func (s *AudioStreamer) configureWithRetry() *AgentError {
	if err := s.recorder.ConfigureAudioMode(); err != nil {
		s.log.WithError(err).Warn("audio mode setup failed, retrying")
		time.Sleep(s.audioConfig.SettleDelay)
		if err := s.recorder.ConfigureAudioMode(); err != nil {
			return asAgentError(err, ErrCodeDeviceConfig)
		}
	}
	return nil
}

func (s *AudioStreamer) createSessionWithRetry() (RecordingSession, *AgentError) {
	session, err := s.recorder.NewSession(s.onSegmentComplete)
	if err != nil {
		s.log.WithError(err).Warn("session create failed, retrying")
		time.Sleep(s.audioConfig.SettleDelay)
		session, err = s.recorder.NewSession(s.onSegmentComplete)
		if err != nil {
			return nil, asAgentError(err, ErrCodeDeviceConfig)
		}
	}
	return session, nil
}

func (s *AudioStreamer) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.audioConfig.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.ProcessChunk()
		}
	}
}

// onSegmentComplete is the device-callback path into chunk processing. It
// is coalesced with the interval tick by the processing guard.
func (s *AudioStreamer) onSegmentComplete() {
	s.ProcessChunk()
}

// ProcessChunk drains the current session's buffered data as one chunk.
// Only one processing pass runs at a time; a tick arriving mid-pass is
// dropped, not queued.
func (s *AudioStreamer) ProcessChunk() {
	s.mu.Lock()
	if s.state != StreamerStreaming || s.isProcessing || s.isRotating {
		s.mu.Unlock()
		return
	}
	s.isProcessing = true
	session := s.session
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isProcessing = false
		s.mu.Unlock()
	}()

	if session == nil {
		return
	}

	size, err := session.BufferedBytes()
	if err != nil {
		s.log.WithError(err).Warn("could not read buffered size")
		return
	}

	age := time.Since(session.StartedAt())

	if size < s.audioConfig.MinChunkBytes {
		// Not enough audio yet. If the device keeps producing undersized
		// buffers past the stall threshold, rotate to recover it.
		if age > s.audioConfig.StallThreshold {
			s.log.LogAudioEvent("stall_detected", map[string]interface{}{
				"buffered_bytes": size,
				"session_age_ms": age.Milliseconds(),
			})
			s.rotate()
		}
		return
	}

	data, err := session.ReadAll()
	if err != nil {
		s.log.WithError(err).Warn("could not read session buffer")
		return
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	if s.config.DebugAudio {
		s.saveDebugChunk(data)
	}

	s.log.LogAudioEvent("chunk", map[string]interface{}{
		"bytes":          len(data),
		"session_age_ms": age.Milliseconds(),
	})
	s.emitter.Publish(EventAudioData, encoded)

	if age > s.audioConfig.RotationPeriod {
		s.rotate()
	}
}

// Rotate forces a rotation to a fresh recording session. A rotation issued
// while a processing pass is in flight waits for the pass to finish; one
// issued while another rotation is in flight is skipped, not queued. The
// processing check and the rotation claim happen under one lock
// acquisition, so a tick can never slip in between them.
func (s *AudioStreamer) Rotate() {
	deadline := time.Now().Add(stopWaitMax)
	for {
		s.mu.Lock()
		if s.state != StreamerStreaming || s.isRotating {
			s.mu.Unlock()
			return
		}
		if !s.isProcessing {
			s.isRotating = true
			s.mu.Unlock()
			s.doRotate()
			return
		}
		s.mu.Unlock()
		if time.Now().After(deadline) {
			s.log.Warn("gave up waiting for processing before rotation")
			return
		}
		time.Sleep(stopWaitPoll)
	}
}

// rotate claims the rotation guard from within a processing pass; the pass
// itself holds the processing guard, so processing and rotation stay
// mutually exclusive. A rotation already in flight is skipped, not queued.
func (s *AudioStreamer) rotate() {
	s.mu.Lock()
	if s.isRotating || (s.state != StreamerStreaming) {
		s.mu.Unlock()
		return
	}
	s.isRotating = true
	s.mu.Unlock()
	s.doRotate()
}

// doRotate closes the current bounded recording segment and opens a new
// one. The caller has already claimed the rotation guard. Rotation failure
// is fatal to the stream and forces a full stop rather than retrying
// indefinitely.
func (s *AudioStreamer) doRotate() {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	failed := false
	defer func() {
		s.mu.Lock()
		s.isRotating = false
		s.mu.Unlock()
		if failed {
			// Stop waits for in-flight passes, so it must run outside
			// this one.
			go func() {
				if err := s.Stop(); err != nil {
					s.log.WithError(err).Error("stop after rotation failure")
				}
			}()
		}
	}()

	s.log.Debug("rotating recording session")

	if session != nil {
		if err := session.StopAndRemove(); err != nil {
			s.log.WithError(err).Warn("failed to release old session")
		}
	}

	time.Sleep(s.audioConfig.SettleDelay)

	if err := s.recorder.ConfigureAudioMode(); err != nil {
		failed = true
		s.clearSession()
		s.emitter.PublishError(NewRotationError(err.Error()))
		return
	}

	next, agentErr := s.createSessionWithRetry()
	if agentErr != nil {
		failed = true
		s.clearSession()
		s.emitter.PublishError(NewRotationError(agentErr.Message))
		return
	}

	s.mu.Lock()
	s.session = next
	s.mu.Unlock()
	s.log.Debug("rotated to new recording session")
}

func (s *AudioStreamer) clearSession() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

// Stop halts streaming. The state flips to Stopping first so in-flight
// ticks see it and no-op, then Stop waits (bounded poll) for any in-flight
// processing or rotation pass before tearing down the session. Calling Stop
// when already Idle is a no-op.
func (s *AudioStreamer) Stop() error {
	s.mu.Lock()
	if s.state == StreamerIdle || s.state == StreamerStopping {
		s.mu.Unlock()
		return nil
	}
	s.state = StreamerStopping
	if s.stopTicker != nil {
		close(s.stopTicker)
		s.stopTicker = nil
	}
	s.mu.Unlock()

	deadline := time.Now().Add(stopWaitMax)
	for {
		s.mu.Lock()
		busy := s.isProcessing || s.isRotating
		s.mu.Unlock()
		if !busy {
			break
		}
		if time.Now().After(deadline) {
			s.log.Warn("gave up waiting for in-flight capture work")
			break
		}
		time.Sleep(stopWaitPoll)
	}

	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	var stopErr error
	if session != nil {
		if err := session.StopAndRemove(); err != nil {
			s.log.WithError(err).Warn("failed to release session on stop")
			stopErr = err
		}
	}

	s.mu.Lock()
	s.state = StreamerIdle
	s.mu.Unlock()

	s.log.Info("streaming stopped")
	s.emitter.Publish(EventStopped, nil)
	return stopErr
}

// State returns the current streamer state.
func (s *AudioStreamer) State() StreamerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsStreaming reports whether capture is active.
func (s *AudioStreamer) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StreamerStreaming
}

func (s *AudioStreamer) saveDebugChunk(data []byte) {
	dir := s.config.DebugAudioDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "voiceagent_debug")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.WithError(err).Warn("could not create debug audio dir")
		return
	}

	s.mu.Lock()
	n := s.debugCounter
	s.debugCounter++
	s.mu.Unlock()

	path := filepath.Join(dir, fmt.Sprintf("audio_chunk_%d.pcm", n))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.log.WithError(err).Warn("could not save debug chunk")
		return
	}
	s.log.WithField("path", path).Debug("saved debug chunk")
}

// asAgentError preserves an existing AgentError's code, wrapping plain
// errors with the fallback code.
func asAgentError(err error, fallbackCode string) *AgentError {
	if agentErr, ok := err.(*AgentError); ok {
		return agentErr
	}
	return WrapError(err, fallbackCode)
}
