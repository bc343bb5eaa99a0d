package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"melodizr/core/capture"
	"melodizr/model"
)

type fakeSession struct {
	mu        sync.Mutex
	opened    bool
	aborted   bool
	capturing bool
	maxDur    time.Duration
	progress  chan capture.Progress
	result    *capture.Result
	last      *capture.Result

	openErr error
	stopErr error
}

func (s *fakeSession) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = true
	return nil
}

func (s *fakeSession) BeginCapture(ctx context.Context, maxDuration time.Duration) (<-chan capture.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capturing = true
	s.maxDur = maxDuration
	s.progress = make(chan capture.Progress, 8)
	return s.progress, nil
}

func (s *fakeSession) EndCapture(ctx context.Context) (*capture.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.capturing {
		return nil, capture.ErrNoActiveCapture
	}
	s.capturing = false
	close(s.progress)
	if s.stopErr != nil {
		return nil, s.stopErr
	}
	s.last = s.result
	return s.result, nil
}

func (s *fakeSession) Result() *capture.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *fakeSession) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	if s.capturing {
		s.capturing = false
		close(s.progress)
	}
}

// autoStop simulates the session's internal timeout: it ends the capture
// itself and emits the terminal event, as the real session does.
func (s *fakeSession) autoStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.capturing {
		return
	}
	s.capturing = false
	s.last = s.result
	s.progress <- capture.Progress{ElapsedMillis: s.maxDur.Milliseconds(), AutoStopped: true}
	close(s.progress)
}

type fakeGateway struct {
	mu      sync.Mutex
	lastReq model.ConversionRequest
	lastUID int64
	path    string
	err     error
	block   chan struct{} // if set, Convert waits on it
}

func (g *fakeGateway) Convert(ctx context.Context, userID int64, req model.ConversionRequest) (string, error) {
	g.mu.Lock()
	g.lastReq = req
	g.lastUID = userID
	block := g.block
	g.mu.Unlock()
	if block != nil {
		<-block
	}
	if g.err != nil {
		return "", g.err
	}
	return g.path, nil
}

type fakeProber struct {
	durations map[string]int64
	err       error
}

func (p *fakeProber) DurationMillis(ctx context.Context, path string) (int64, error) {
	if p.err != nil {
		return 0, p.err
	}
	return p.durations[path], nil
}

type fakeSaver struct {
	mu     sync.Mutex
	voices []*model.Voice
	tracks []*model.Track
	err    error
}

func (s *fakeSaver) SaveVoice(ctx context.Context, v *model.Voice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.voices = append(s.voices, v)
	return nil
}

func (s *fakeSaver) SaveTrack(ctx context.Context, t *model.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tracks = append(s.tracks, t)
	return nil
}

type harness struct {
	m       *Machine
	session *fakeSession
	gateway *fakeGateway
	prober  *fakeProber
	saver   *fakeSaver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		session: &fakeSession{result: &capture.Result{URI: "/tmp/take.wav", DurationMillis: 4200}},
		gateway: &fakeGateway{path: "/tmp/converted.wav"},
		prober:  &fakeProber{durations: map[string]int64{"/tmp/converted.wav": 7900}},
		saver:   &fakeSaver{},
	}
	h.m = NewMachine(nil, h.gateway, h.prober, h.saver, 120, 4)
	h.m.newSession = func() CaptureSession { return h.session }
	h.m.countIn = func(ctx context.Context, bpm, beats int, onTick func(int)) error {
		for i := beats; i > 0; i-- {
			if onTick != nil {
				onTick(i)
			}
		}
		return ctx.Err()
	}
	h.m.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	h.m.SetUser(7)
	return h
}

func (h *harness) record(t *testing.T) {
	t.Helper()
	require.NoError(t, h.m.StartRecording(context.Background()))
	require.NoError(t, h.m.StopRecording(context.Background()))
	require.Equal(t, StepReview, h.m.Step())
}

func TestMaxCaptureDuration(t *testing.T) {
	assert.Equal(t, int64(8000), MaxCaptureDurationMillis(120, 4))
	assert.Equal(t, int64(16000), MaxCaptureDurationMillis(60, 4))
	assert.Equal(t, int64(10667), MaxCaptureDurationMillis(90, 4))
	assert.Equal(t, int64(4000), MaxCaptureDurationMillis(120, 2))
}

func TestStartRecordingHappyPath(t *testing.T) {
	h := newHarness(t)

	var ticks []int
	h.m.SetEvents(Events{OnCountIn: func(r int) { ticks = append(ticks, r) }})

	require.NoError(t, h.m.StartRecording(context.Background()))
	assert.Equal(t, StepCapturing, h.m.Step())
	assert.Equal(t, []int{4, 3, 2, 1}, ticks)
	assert.True(t, h.session.opened)
	assert.Equal(t, 8*time.Second, h.session.maxDur)
}

func TestStartRecordingDeviceErrorStaysIdle(t *testing.T) {
	h := newHarness(t)
	h.session.openErr = capture.ErrPermissionDenied

	err := h.m.StartRecording(context.Background())
	assert.ErrorIs(t, err, capture.ErrPermissionDenied)
	assert.Equal(t, StepIdle, h.m.Step())
	assert.True(t, h.session.aborted)
}

func TestStopRecordingEntersReview(t *testing.T) {
	h := newHarness(t)
	h.record(t)

	attempt := h.m.Attempt()
	require.NotNil(t, attempt)
	assert.Equal(t, "/tmp/take.wav", attempt.SourceURI)
	assert.Equal(t, int64(4200), attempt.DurationMillis)
	assert.Equal(t, model.SourceRecording, attempt.SourceKind)
}

func TestEmptyCaptureFallsBackToIdle(t *testing.T) {
	h := newHarness(t)
	h.session.result = &capture.Result{URI: "", DurationMillis: 0}

	require.NoError(t, h.m.StartRecording(context.Background()))
	require.NoError(t, h.m.StopRecording(context.Background()))
	assert.Equal(t, StepIdle, h.m.Step())
	assert.Nil(t, h.m.Attempt())
}

func TestAutoStopDrivesReview(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.StartRecording(context.Background()))

	h.session.autoStop()

	require.Eventually(t, func() bool {
		return h.m.Step() == StepReview
	}, time.Second, 5*time.Millisecond)
	attempt := h.m.Attempt()
	require.NotNil(t, attempt)
	assert.Equal(t, "/tmp/take.wav", attempt.SourceURI)
}

func TestUploadFileWithinTolerance(t *testing.T) {
	h := newHarness(t)
	// 120 bpm, 4 bars: ceiling 8000ms, tolerance 500ms.
	h.prober.durations = map[string]int64{"/u/loop.mp3": 8400}

	require.NoError(t, h.m.UploadFile(context.Background(), "/u/loop.mp3", "loop.mp3"))
	assert.Equal(t, StepReview, h.m.Step())
	attempt := h.m.Attempt()
	assert.Equal(t, model.SourceFile, attempt.SourceKind)
	assert.Equal(t, "loop.mp3", attempt.OriginalFileName)
	assert.Equal(t, int64(8400), attempt.DurationMillis)
}

func TestUploadFileTooLong(t *testing.T) {
	h := newHarness(t)
	h.prober.durations = map[string]int64{"/u/long.mp3": 8600}

	err := h.m.UploadFile(context.Background(), "/u/long.mp3", "long.mp3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileTooLong)

	var tooLong *FileTooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.InDelta(t, 8.0, tooLong.AllowedSeconds(), 0.001)

	assert.Equal(t, StepIdle, h.m.Step())
	assert.Nil(t, h.m.Attempt())
}

func TestStartFromVoice(t *testing.T) {
	h := newHarness(t)
	err := h.m.StartFromVoice(&model.Voice{
		URI:            "/v/old.wav",
		DurationMillis: 3000,
		Type:           model.VoiceBeatbox,
		SourceKind:     model.SourceRecording,
	})
	require.NoError(t, err)
	assert.Equal(t, StepReview, h.m.Step())
	assert.Equal(t, "/v/old.wav", h.m.Attempt().SourceURI)
	assert.Equal(t, model.VoiceBeatbox, h.m.Config().VoiceType)
}

func TestConvertSuccess(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	h.m.Configure(ModeConfig{
		Mode:             model.ModeInstrument,
		TargetInstrument: model.InstrumentBass,
		StylePrompt:      "funky slap",
	})

	var done sync.WaitGroup
	done.Add(1)
	var gotVoice *model.Voice
	var gotTrack *model.Track
	h.m.SetEvents(Events{OnComplete: func(v *model.Voice, tr *model.Track) {
		gotVoice, gotTrack = v, tr
		done.Done()
	}})

	require.NoError(t, h.m.Convert(context.Background()))
	done.Wait()

	assert.Equal(t, StepIdle, h.m.Step())
	assert.Nil(t, h.m.Attempt())

	assert.Equal(t, int64(7), h.gateway.lastUID)
	assert.Equal(t, model.InstrumentBass, h.gateway.lastReq.TargetInstrument)
	assert.Equal(t, "funky slap", h.gateway.lastReq.StylePrompt)
	assert.Equal(t, 120, h.gateway.lastReq.BPM)
	assert.Equal(t, "/tmp/take.wav", h.gateway.lastReq.AudioPath)

	require.Len(t, h.saver.voices, 1)
	require.Len(t, h.saver.tracks, 1)
	assert.Equal(t, h.saver.voices[0].ID, h.saver.tracks[0].OriginalVoiceID)
	assert.Equal(t, "/tmp/converted.wav", h.saver.tracks[0].URI)
	assert.Equal(t, int64(7900), h.saver.tracks[0].DurationMillis)
	assert.Same(t, h.saver.voices[0], gotVoice)
	assert.Same(t, h.saver.tracks[0], gotTrack)

	// Config resets for the next session.
	assert.Equal(t, model.InstrumentDrum, h.m.Config().TargetInstrument)
}

func TestConvertFailureReturnsToReview(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	h.gateway.err = errors.New("conversion failed: status 502")

	err := h.m.Convert(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepReview, h.m.Step())
	require.NotNil(t, h.m.Attempt())
	assert.Equal(t, "/tmp/take.wav", h.m.Attempt().SourceURI)
	assert.Empty(t, h.saver.voices)
}

func TestCloseDiscardsInFlightConversion(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	h.gateway.block = make(chan struct{})

	var completed bool
	h.m.SetEvents(Events{OnComplete: func(*model.Voice, *model.Track) { completed = true }})

	errCh := make(chan error, 1)
	go func() { errCh <- h.m.Convert(context.Background()) }()

	require.Eventually(t, func() bool {
		return h.m.Step() == StepConverting
	}, time.Second, time.Millisecond)

	h.m.Close()
	close(h.gateway.block)

	require.NoError(t, <-errCh)
	assert.Equal(t, StepIdle, h.m.Step())
	assert.Empty(t, h.saver.voices)
	assert.Empty(t, h.saver.tracks)
	assert.False(t, completed)
}

func TestCloseDuringCountIn(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.m.countIn = func(ctx context.Context, bpm, beats int, onTick func(int)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- h.m.StartRecording(context.Background()) }()

	<-started
	h.m.Close()

	require.Error(t, <-errCh)
	assert.Equal(t, StepIdle, h.m.Step())
	assert.True(t, h.session.aborted)
}

func TestRetake(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	h.m.Configure(ModeConfig{Mode: model.ModeAutoTune, TunePreset: model.TuneHard})

	require.NoError(t, h.m.Retake())
	assert.Equal(t, StepIdle, h.m.Step())
	assert.Nil(t, h.m.Attempt())
	assert.Equal(t, model.ModeInstrument, h.m.Config().Mode)
}

func TestCommandsInvalidForStep(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.m.StopRecording(context.Background()), ErrInvalidStep)
	assert.ErrorIs(t, h.m.Convert(context.Background()), ErrInvalidStep)
	assert.ErrorIs(t, h.m.Retake(), ErrInvalidStep)

	h.record(t)
	assert.ErrorIs(t, h.m.StartRecording(context.Background()), ErrInvalidStep)
	assert.ErrorIs(t, h.m.UploadFile(context.Background(), "/u/a.mp3", "a.mp3"), ErrInvalidStep)
}

func TestTempoClamping(t *testing.T) {
	h := newHarness(t)
	h.m.SetTempo(300, 4)
	assert.Equal(t, 180, h.m.BPM())
	h.m.SetTempo(10, 4)
	assert.Equal(t, 60, h.m.BPM())
}
