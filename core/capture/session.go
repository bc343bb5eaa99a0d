package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"melodizr/logger"
)

// State is the capture session lifecycle state.
type State string

const (
	StateClosed    State = "CLOSED"
	StateOpen      State = "OPEN"
	StateCapturing State = "CAPTURING"
)

// DefaultSampleInterval is the progress event sampling period.
const DefaultSampleInterval = 100 * time.Millisecond

// Result is the outcome of a finished capture.
type Result struct {
	URI            string
	DurationMillis int64
}

// Progress is one elapsed-time sample of an in-flight capture. The terminal
// event of a timed-out capture carries AutoStopped=true, distinguishing it
// from a user-initiated stop (where the stream simply ends).
type Progress struct {
	ElapsedMillis int64
	AutoStopped   bool
}

// Only one session may be open process-wide; the microphone is an exclusive
// hardware resource.
var (
	activeMu      sync.Mutex
	activeSession *Session
)

func claimActive(s *Session) error {
	activeMu.Lock()
	defer activeMu.Unlock()
	if activeSession != nil && activeSession != s {
		return ErrDeviceUnavailable
	}
	activeSession = s
	return nil
}

func releaseActive(s *Session) {
	activeMu.Lock()
	defer activeMu.Unlock()
	if activeSession == s {
		activeSession = nil
	}
}

// Session owns the recording device for the lifetime of one capture.
// Lifecycle: Closed → Open → Capturing → Closed. Concurrent stop callers
// (user action racing the max-duration timeout) are resolved first-caller-
// wins: the second EndCapture finds the session Closed and becomes a no-op.
type Session struct {
	mu          sync.Mutex
	state       State
	dev         Device
	sampleEvery time.Duration
	clock       func() time.Time // injectable for tests

	startedAt   time.Time
	stopTick    chan struct{}
	tickStopped bool
	lastResult  *Result
}

// NewSession creates a session over the given device.
func NewSession(dev Device) *Session {
	return &Session{
		state:       StateClosed,
		dev:         dev,
		sampleEvery: DefaultSampleInterval,
		clock:       time.Now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open acquires the device. Fails with ErrDeviceUnavailable if another
// session is already open process-wide, without touching that session.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		return ErrDeviceUnavailable
	}
	if err := claimActive(s); err != nil {
		return err
	}
	if err := s.dev.Open(ctx); err != nil {
		releaseActive(s)
		return err
	}
	s.state = StateOpen
	return nil
}

// BeginCapture starts recording and returns a lazy progress stream sampled
// every ~100ms. The stream is restartable per call, not resumable: it ends
// when the capture ends. If maxDuration > 0 and elapsed time reaches it, the
// session auto-invokes EndCapture and emits a terminal AutoStopped event.
func (s *Session) BeginCapture(ctx context.Context, maxDuration time.Duration) (<-chan Progress, error) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil, ErrNoActiveCapture
	}
	if err := s.dev.Start(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state = StateCapturing
	s.startedAt = s.clock()
	s.stopTick = make(chan struct{})
	s.tickStopped = false
	stop := s.stopTick
	s.mu.Unlock()

	ch := make(chan Progress, 8)
	go s.tickLoop(maxDuration, ch, stop)
	return ch, nil
}

func (s *Session) tickLoop(maxDuration time.Duration, ch chan<- Progress, stop <-chan struct{}) {
	defer close(ch)
	ticker := time.NewTicker(s.sampleEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			elapsed := s.clock().Sub(s.startedAt)
			if maxDuration > 0 && elapsed >= maxDuration {
				// Timeout path. EndCapture is first-caller-wins, so if the
				// user stopped in the same instant this loses quietly and no
				// AutoStopped event is emitted.
				if _, err := s.EndCapture(context.Background()); err == nil {
					select {
					case ch <- Progress{ElapsedMillis: maxDuration.Milliseconds(), AutoStopped: true}:
					default:
					}
				}
				return
			}
			select {
			case ch <- Progress{ElapsedMillis: elapsed.Milliseconds()}:
			case <-stop:
				return
			}
		}
	}
}

// EndCapture stops recording and returns the captured audio. The first
// caller wins; once the session is Closed, subsequent calls return
// ErrNoActiveCapture, which callers treat as benign (user stop and timeout
// auto-stop can race).
func (s *Session) EndCapture(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.state != StateCapturing {
		s.mu.Unlock()
		return nil, ErrNoActiveCapture
	}
	s.state = StateClosed
	s.stopTicking()
	started := s.startedAt
	s.mu.Unlock()
	releaseActive(s)

	uri, dur, err := s.dev.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stop capture device: %w", err)
	}
	if dur <= 0 {
		// Some backends report no duration on very short takes; fall back to
		// wall clock.
		dur = s.clock().Sub(started).Milliseconds()
	}
	res := &Result{URI: uri, DurationMillis: dur}
	s.mu.Lock()
	s.lastResult = res
	s.mu.Unlock()
	return res, nil
}

// Result returns the outcome of the last completed capture, or nil. Lets the
// loser of a stop race (typically a user stop arriving just after the
// timeout auto-stop) still retrieve the audio.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// Abort force-closes the session and discards any in-progress capture. Safe
// from any state, including while an EndCapture is in flight: the device is
// released either way.
func (s *Session) Abort() {
	s.mu.Lock()
	prev := s.state
	s.state = StateClosed
	s.stopTicking()
	s.mu.Unlock()
	releaseActive(s)

	if prev != StateClosed {
		logger.Debug("capture session aborted", logger.String("from", string(prev)))
	}
	s.dev.Abort()
}

// stopTicking closes the tick channel exactly once. Caller holds s.mu.
func (s *Session) stopTicking() {
	if s.stopTick != nil && !s.tickStopped {
		close(s.stopTick)
		s.tickStopped = true
	}
}
