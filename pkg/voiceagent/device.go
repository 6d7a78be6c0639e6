package voiceagent

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

// RecordingSession is an opaque handle to one bounded capture window. It is
// owned exclusively by the AudioStreamer: created on start/rotate, destroyed
// on rotate/stop. At most one live session exists per streaming session.
type RecordingSession interface {
	// StartedAt returns when capture for this window began.
	StartedAt() time.Time
	// BufferedBytes returns the captured-byte estimate so far.
	BufferedBytes() (int64, error)
	// ReadAll returns everything captured in this window so far.
	ReadAll() ([]byte, error)
	// StopAndRemove stops capture, releases the device resources and
	// deletes the backing file. The session is unusable afterwards.
	StopAndRemove() error
}

// Recorder creates recording sessions against a capture device.
// onSegmentComplete, when non-nil, is invoked by the device if the platform
// finishes a bounded segment on its own; it is coalesced with the interval
// tick by the streamer's re-entrancy guard.
type Recorder interface {
	RequestPermission() error
	ConfigureAudioMode() error
	NewSession(onSegmentComplete func()) (RecordingSession, error)
	Close() error
}

// Player plays one synthesized WAV file at a time. Play blocks until
// playback completes; Stop releases the currently loaded resource and is
// safe to call when nothing is playing.
type Player interface {
	Play(path string) error
	Stop() error
}

// DeviceInfo describes one audio device visible to the capture backend.
type DeviceInfo struct {
	Index         int
	Name          string
	MaxInputs     int
	MaxOutputs    int
	SampleRate    float64
	DefaultInput  bool
	DefaultOutput bool
}

// ListAudioDevices enumerates the host's audio devices. It manages its own
// portaudio lifetime and can be called without a recorder.
func ListAudioDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	defaultIn, _ := portaudio.DefaultInputDevice()
	defaultOut, _ := portaudio.DefaultOutputDevice()

	infos := make([]DeviceInfo, 0, len(devices))
	for i, d := range devices {
		infos = append(infos, DeviceInfo{
			Index:         i,
			Name:          d.Name,
			MaxInputs:     d.MaxInputChannels,
			MaxOutputs:    d.MaxOutputChannels,
			SampleRate:    d.DefaultSampleRate,
			DefaultInput:  defaultIn != nil && d == defaultIn,
			DefaultOutput: defaultOut != nil && d == defaultOut,
		})
	}
	return infos, nil
}

// PortAudioRecorder captures mono 16-bit PCM from the default input device
// into temp-file backed sessions.
type PortAudioRecorder struct {
	config *AudioConfig
	log    *Logger
	mu     sync.Mutex
}

func NewPortAudioRecorder(config *AudioConfig, log *Logger) (*PortAudioRecorder, error) {
	if config == nil {
		config = NewAudioConfig()
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &PortAudioRecorder{
		config: config,
		log:    orNop(log).WithComponent("recorder"),
	}, nil
}

// RequestPermission probes the configured input device. Opening it is the
// closest portaudio analog to a microphone permission prompt: it fails when
// the OS denies access or no capture device exists.
func (r *PortAudioRecorder) RequestPermission() error {
	stream, err := r.openInputStream(func(in []int16) {})
	if err != nil {
		return NewPermissionError(err.Error())
	}
	return stream.Close()
}

// openInputStream opens a capture stream against AudioConfig.DeviceID when
// set, the default input device otherwise.
func (r *PortAudioRecorder) openInputStream(callback func(in []int16)) (*portaudio.Stream, error) {
	if r.config.DeviceID == nil {
		return portaudio.OpenDefaultStream(r.config.Channels, 0,
			float64(r.config.SampleRate), r.config.BufferSize, callback)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	id := *r.config.DeviceID
	if id < 0 || id >= len(devices) {
		return nil, fmt.Errorf("device id %d out of range (%d devices)", id, len(devices))
	}

	params := portaudio.LowLatencyParameters(devices[id], nil)
	params.Input.Channels = r.config.Channels
	params.SampleRate = float64(r.config.SampleRate)
	params.FramesPerBuffer = r.config.BufferSize
	return portaudio.OpenStream(params, callback)
}

func (r *PortAudioRecorder) ConfigureAudioMode() error {
	if r.config.DeviceID != nil {
		devices, err := portaudio.Devices()
		if err != nil {
			return NewDeviceConfigError(err.Error())
		}
		if id := *r.config.DeviceID; id < 0 || id >= len(devices) {
			return NewDeviceConfigError(fmt.Sprintf("device id %d out of range", id))
		}
		return nil
	}
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		return NewDeviceConfigError(err.Error())
	}
	return nil
}

func (r *PortAudioRecorder) NewSession(onSegmentComplete func()) (RecordingSession, error) {
	file, err := os.CreateTemp("", fmt.Sprintf("capture_%s_*.pcm", uuid.NewString()[:8]))
	if err != nil {
		return nil, NewDeviceConfigError(err.Error())
	}

	session := &paSession{
		file:      file,
		path:      file.Name(),
		startedAt: time.Now(),
		log:       r.log,
	}

	stream, err := r.openInputStream(session.capture)
	if err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, NewDeviceConfigError(err.Error())
	}
	session.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		file.Close()
		os.Remove(file.Name())
		return nil, NewDeviceConfigError(err.Error())
	}

	r.log.LogAudioEvent("session_created", map[string]interface{}{
		"path": session.path,
	})
	return session, nil
}

func (r *PortAudioRecorder) Close() error {
	return portaudio.Terminate()
}

type paSession struct {
	stream    *portaudio.Stream
	file      *os.File
	path      string
	startedAt time.Time
	buffered  int64
	stopped   bool
	log       *Logger
	mu        sync.Mutex
}

func (s *paSession) capture(in []int16) {
	buf := make([]byte, len(in)*2)
	for i, sample := range in {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	n, err := s.file.Write(buf)
	s.buffered += int64(n)
	if err != nil {
		s.log.WithError(err).Warn("capture write failed")
	}
}

func (s *paSession) StartedAt() time.Time {
	return s.startedAt
}

func (s *paSession) BufferedBytes() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, fmt.Errorf("session stopped")
	}
	return s.buffered, nil
}

func (s *paSession) ReadAll() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("session stopped")
	}
	if err := s.file.Sync(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.path)
}

func (s *paSession) StopAndRemove() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	var firstErr error
	if err := s.stream.Stop(); err != nil {
		firstErr = err
	}
	if err := s.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := os.Remove(s.path); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// PortAudioPlayer renders 16-bit mono WAV files to the default output
// device.
type PortAudioPlayer struct {
	config  *AudioConfig
	log     *Logger
	mu      sync.Mutex
	current *portaudio.Stream
	abort   chan struct{}
}

func NewPortAudioPlayer(config *AudioConfig, log *Logger) *PortAudioPlayer {
	if config == nil {
		config = NewAudioConfig()
	}
	return &PortAudioPlayer{
		config: config,
		log:    orNop(log).WithComponent("player"),
	}
}

func (p *PortAudioPlayer) Play(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewPlaybackError(err.Error())
	}
	if len(data) <= wavHeaderSize {
		return NewPlaybackError("audio file shorter than WAV header")
	}

	pcm := data[wavHeaderSize:]
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	done := make(chan struct{}, 1)
	abort := make(chan struct{})
	index := 0
	var streamMu sync.Mutex

	stream, err := portaudio.OpenDefaultStream(0, p.config.Channels,
		float64(p.config.SampleRate), p.config.BufferSize, func(out []int16) {
			streamMu.Lock()
			defer streamMu.Unlock()
			for i := range out {
				if index < len(samples) {
					out[i] = samples[index]
					index++
				} else {
					out[i] = 0
				}
			}
			if index >= len(samples) {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		})
	if err != nil {
		return NewPlaybackError(err.Error())
	}

	p.mu.Lock()
	p.current = stream
	p.abort = abort
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.current == stream {
			p.current = nil
			p.abort = nil
		}
		p.mu.Unlock()
		stream.Close()
	}()

	if err := stream.Start(); err != nil {
		return NewPlaybackError(err.Error())
	}

	maxWait := time.Duration(float64(len(samples))/float64(p.config.SampleRate)*1.5*float64(time.Second)) + time.Second
	select {
	case <-done:
	case <-abort:
	case <-time.After(maxWait):
		p.log.Warn("playback timed out waiting for completion")
	}

	if err := stream.Stop(); err != nil {
		return NewPlaybackError(err.Error())
	}
	return nil
}

func (p *PortAudioPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	if p.abort != nil {
		close(p.abort)
		p.abort = nil
	}
	return nil
}
