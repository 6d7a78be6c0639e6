package voiceagent

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// fakeSession is an in-memory RecordingSession with hooks for blocking
// reads and backdating the start time.
type fakeSession struct {
	mu        sync.Mutex
	startedAt time.Time
	data      []byte
	stopped   bool
	blockRead chan struct{} // when non-nil, ReadAll waits on it
}

func newFakeSession() *fakeSession {
	return &fakeSession{startedAt: time.Now()}
}

func (s *fakeSession) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *fakeSession) backdate(d time.Duration) {
	s.mu.Lock()
	s.startedAt = s.startedAt.Add(-d)
	s.mu.Unlock()
}

func (s *fakeSession) setData(data []byte) {
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

func (s *fakeSession) BufferedBytes() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, fmt.Errorf("session stopped")
	}
	return int64(len(s.data)), nil
}

func (s *fakeSession) ReadAll() ([]byte, error) {
	s.mu.Lock()
	block := s.blockRead
	s.mu.Unlock()
	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("session stopped")
	}
	return append([]byte(nil), s.data...), nil
}

func (s *fakeSession) StopAndRemove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeSession) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// fakeRecorder hands out fakeSessions and records how many were created.
type fakeRecorder struct {
	mu             sync.Mutex
	sessions       []*fakeSession
	permissionErr  error
	configureErr   error
	sessionErrs    []error // consumed one per NewSession call
	segmentCb      func()
	configureCalls int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{}
}

func (r *fakeRecorder) RequestPermission() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.permissionErr
}

func (r *fakeRecorder) ConfigureAudioMode() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configureCalls++
	return r.configureErr
}

func (r *fakeRecorder) NewSession(onSegmentComplete func()) (RecordingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessionErrs) > 0 {
		err := r.sessionErrs[0]
		r.sessionErrs = r.sessionErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	r.segmentCb = onSegmentComplete
	session := newFakeSession()
	r.sessions = append(r.sessions, session)
	return session, nil
}

func (r *fakeRecorder) Close() error { return nil }

func (r *fakeRecorder) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *fakeRecorder) lastSession() *fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return nil
	}
	return r.sessions[len(r.sessions)-1]
}

// fakePlayer records played files and can hold playback open until the test
// releases it, to simulate long-running audio.
type fakePlayer struct {
	mu            sync.Mutex
	played        []string
	payloads      [][]byte
	concurrent    int
	maxConcurrent int
	stops         int
	release       chan struct{} // when non-nil, Play blocks on it
	playErr       error
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{}
}

// holdPlayback makes Play block until releaseOne is called.
func (p *fakePlayer) holdPlayback() {
	p.mu.Lock()
	p.release = make(chan struct{}, 16)
	p.mu.Unlock()
}

func (p *fakePlayer) releaseOne() {
	p.mu.Lock()
	release := p.release
	p.mu.Unlock()
	if release != nil {
		release <- struct{}{}
	}
}

func (p *fakePlayer) Play(path string) error {
	p.mu.Lock()
	p.concurrent++
	if p.concurrent > p.maxConcurrent {
		p.maxConcurrent = p.concurrent
	}
	p.played = append(p.played, path)
	if data, err := os.ReadFile(path); err == nil {
		p.payloads = append(p.payloads, data)
	}
	release := p.release
	err := p.playErr
	p.mu.Unlock()

	if release != nil {
		<-release
	}

	p.mu.Lock()
	p.concurrent--
	p.mu.Unlock()
	return err
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *fakePlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func (p *fakePlayer) maxSeen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxConcurrent
}

// waitUntil polls cond every few milliseconds until it holds or the timeout
// elapses, returning whether it held.
func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// testAudioConfig returns an AudioConfig tuned for fast tests: manual
// ticking, tiny settle delay.
func testAudioConfig() *AudioConfig {
	cfg := NewAudioConfig()
	cfg.UpdateInterval = time.Hour // ticks driven manually by tests
	cfg.SettleDelay = time.Millisecond
	cfg.MinChunkBytes = 10
	cfg.RotationPeriod = time.Hour
	cfg.StallThreshold = 3 * time.Second
	return cfg
}
