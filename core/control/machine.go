package control

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"melodizr/core/capture"
	"melodizr/core/metronome"
	"melodizr/logger"
	"melodizr/model"
)

// Step is the recording flow's user-visible state.
type Step string

const (
	StepIdle       Step = "IDLE"
	StepCountingIn Step = "COUNTING_IN"
	StepCapturing  Step = "CAPTURING"
	StepReview     Step = "REVIEW"
	StepConverting Step = "CONVERTING"
)

// CountInBeats is the fixed count-in length before capture starts.
const CountInBeats = 4

// UploadToleranceMillis is the slack granted to picked files beyond the
// capture ceiling, absorbing container-level duration fuzz.
const UploadToleranceMillis = 500

// MaxCaptureDurationMillis is the recording ceiling for a session at the
// given tempo: four beats per bar, bars bars.
func MaxCaptureDurationMillis(bpm, bars int) int64 {
	if bpm <= 0 {
		bpm = model.MinBPM
	}
	beat := 60000.0 / float64(bpm)
	return int64(math.Round(beat * 4 * float64(bars)))
}

// CaptureSession is the slice of capture.Session the machine drives.
type CaptureSession interface {
	Open(ctx context.Context) error
	BeginCapture(ctx context.Context, maxDuration time.Duration) (<-chan capture.Progress, error)
	EndCapture(ctx context.Context) (*capture.Result, error)
	Result() *capture.Result
	Abort()
}

// Gateway is the remote conversion service.
type Gateway interface {
	Convert(ctx context.Context, userID int64, req model.ConversionRequest) (string, error)
}

// Prober reports the duration of a local audio file.
type Prober interface {
	DurationMillis(ctx context.Context, path string) (int64, error)
}

// Saver persists the outcome of a successful conversion: the raw voice and
// the converted track. Implementations own upload/copy side effects.
type Saver interface {
	SaveVoice(ctx context.Context, v *model.Voice) error
	SaveTrack(ctx context.Context, t *model.Track) error
}

// ModeConfig is the conversion configuration the user edits during a
// recording session. It resets to defaults when the flow returns to Idle.
type ModeConfig struct {
	Mode             model.ConversionMode
	TargetInstrument model.InstrumentType
	StylePrompt      string
	KeyHint          string
	TunePreset       model.TunePreset
	VoiceType        model.VoiceType
}

func defaultModeConfig() ModeConfig {
	return ModeConfig{
		Mode:             model.ModeInstrument,
		TargetInstrument: model.InstrumentDrum,
		KeyHint:          model.KeyHintAuto,
		TunePreset:       model.TuneNatural,
		VoiceType:        model.VoiceHumming,
	}
}

// Events carries the machine's outbound notifications. All fields are
// optional; callbacks run on the machine's goroutines and must not block.
type Events struct {
	OnStep     func(step Step)
	OnCountIn  func(remaining int)
	OnProgress func(p capture.Progress)
	OnComplete func(voice *model.Voice, track *model.Track)
}

// Machine is the recording control state machine. It owns at most one
// RecordingAttempt and drives count-in, capture, review and conversion.
// One transition runs at a time; commands that do not apply to the current
// step fail fast with ErrInvalidStep, a second trigger during a transition
// with ErrBusy.
type Machine struct {
	mu         sync.Mutex
	step       Step
	busy       bool
	generation uint64

	attempt *model.RecordingAttempt
	cfg     ModeConfig
	bpm     int
	bars    int
	userID  int64

	session     CaptureSession
	cancelStart context.CancelFunc

	gateway Gateway
	prober  Prober
	saver   Saver
	events  Events

	newSession func() CaptureSession
	countIn    func(ctx context.Context, bpm, beats int, onTick func(remaining int)) error
	now        func() time.Time
}

// NewMachine wires a machine over its collaborators. Capture sessions are
// created per recording over the given device.
func NewMachine(dev capture.Device, gateway Gateway, prober Prober, saver Saver, defaultBPM, defaultBars int) *Machine {
	return &Machine{
		step:       StepIdle,
		cfg:        defaultModeConfig(),
		bpm:        model.ClampBPM(defaultBPM),
		bars:       defaultBars,
		gateway:    gateway,
		prober:     prober,
		saver:      saver,
		newSession: func() CaptureSession { return capture.NewSession(dev) },
		countIn:    metronome.CountIn,
		now:        time.Now,
	}
}

// SetEvents installs the notification callbacks.
func (m *Machine) SetEvents(ev Events) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = ev
}

// SetUser binds the machine to the acting user for persistence and uploads.
func (m *Machine) SetUser(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID = userID
}

// Step returns the current step.
func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// Attempt returns the pending attempt, or nil outside Review/Converting.
func (m *Machine) Attempt() *model.RecordingAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Config returns the current mode configuration.
func (m *Machine) Config() ModeConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// BPM returns the session tempo.
func (m *Machine) BPM() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bpm
}

// Bars returns the session length in bars.
func (m *Machine) Bars() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bars
}

// SetTempo updates bpm (clamped to the supported range) and bars.
func (m *Machine) SetTempo(bpm, bars int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bpm = model.ClampBPM(bpm)
	if bars > 0 {
		m.bars = bars
	}
}

// Configure replaces the mode configuration, normalizing absent fields.
func (m *Machine) Configure(cfg ModeConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.Mode == "" {
		cfg.Mode = model.ModeInstrument
	}
	if cfg.KeyHint == "" {
		cfg.KeyHint = model.KeyHintAuto
	}
	if cfg.TunePreset == "" {
		cfg.TunePreset = model.TuneNatural
	}
	if cfg.VoiceType == "" {
		cfg.VoiceType = model.VoiceHumming
	}
	m.cfg = cfg
}

// StartRecording runs Idle → CountingIn → Capturing. It opens the capture
// session, plays the four-beat count-in, then starts capturing with the
// session's duration ceiling. Blocks until capture has actually started.
func (m *Machine) StartRecording(ctx context.Context) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.step != StepIdle {
		m.mu.Unlock()
		return ErrInvalidStep
	}
	m.busy = true
	gen := m.generation
	bpm, bars := m.bpm, m.bars
	sess := m.newSession()
	m.session = sess
	ctx, cancel := context.WithCancel(ctx)
	m.cancelStart = cancel
	m.setStepLocked(StepCountingIn)
	ev := m.events
	m.mu.Unlock()

	fail := func(err error) error {
		cancel()
		sess.Abort()
		m.mu.Lock()
		m.busy = false
		if m.generation == gen {
			m.session = nil
			m.cancelStart = nil
			m.setStepLocked(StepIdle)
		}
		m.mu.Unlock()
		return err
	}

	if err := sess.Open(ctx); err != nil {
		return fail(err)
	}
	if err := m.countIn(ctx, bpm, CountInBeats, ev.OnCountIn); err != nil {
		return fail(fmt.Errorf("count-in interrupted: %w", err))
	}

	maxDur := time.Duration(MaxCaptureDurationMillis(bpm, bars)) * time.Millisecond
	progress, err := sess.BeginCapture(ctx, maxDur)
	if err != nil {
		return fail(err)
	}

	m.mu.Lock()
	m.busy = false
	if m.generation != gen {
		// Closed during count-in; the session was already aborted.
		m.mu.Unlock()
		return ErrInvalidStep
	}
	m.cancelStart = nil
	m.setStepLocked(StepCapturing)
	m.mu.Unlock()

	go m.pumpProgress(gen, progress)
	return nil
}

// pumpProgress forwards capture progress to the listener and drives the
// auto-stop transition when the ceiling is hit.
func (m *Machine) pumpProgress(gen uint64, progress <-chan capture.Progress) {
	for p := range progress {
		m.mu.Lock()
		stale := m.generation != gen
		ev := m.events
		m.mu.Unlock()
		if stale {
			return
		}
		if ev.OnProgress != nil {
			ev.OnProgress(p)
		}
		if p.AutoStopped {
			if err := m.StopRecording(context.Background()); err != nil {
				logger.Debug("auto-stop lost to a concurrent stop", logger.ErrorField(err))
			}
			return
		}
	}
}

// StopRecording runs Capturing → Review. An empty capture (no file written)
// falls back to Idle. The auto-stop timeout drives the same path; losing the
// race is benign for either caller.
func (m *Machine) StopRecording(ctx context.Context) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.step != StepCapturing {
		m.mu.Unlock()
		return ErrInvalidStep
	}
	m.busy = true
	gen := m.generation
	sess := m.session
	m.mu.Unlock()

	res, err := sess.EndCapture(ctx)
	if err != nil && res == nil {
		// Losing the stop race to the auto-stop is benign: the session keeps
		// the winner's result.
		if done := sess.Result(); done != nil {
			res, err = done, nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if m.generation != gen {
		return ErrInvalidStep
	}
	m.session = nil
	if err != nil {
		m.setStepLocked(StepIdle)
		return err
	}
	if res.URI == "" {
		logger.Warn("capture produced no audio, discarding attempt")
		m.setStepLocked(StepIdle)
		return nil
	}
	m.attempt = &model.RecordingAttempt{
		SourceURI:      res.URI,
		DurationMillis: res.DurationMillis,
		SourceKind:     model.SourceRecording,
	}
	m.setStepLocked(StepReview)
	return nil
}

// UploadFile runs Idle → Review from a picked audio file. The file's probed
// duration must fit the session ceiling plus a small tolerance; otherwise the
// machine stays Idle and reports how long a file is allowed to be.
func (m *Machine) UploadFile(ctx context.Context, uri, originalName string) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.step != StepIdle {
		m.mu.Unlock()
		return ErrInvalidStep
	}
	m.busy = true
	gen := m.generation
	maxDur := MaxCaptureDurationMillis(m.bpm, m.bars)
	m.mu.Unlock()

	dur, err := m.prober.DurationMillis(ctx, uri)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if m.generation != gen {
		return ErrInvalidStep
	}
	if err != nil {
		return fmt.Errorf("failed to probe uploaded audio: %w", err)
	}
	if dur > maxDur+UploadToleranceMillis {
		return &FileTooLongError{AllowedMillis: maxDur, ActualMillis: dur}
	}
	m.attempt = &model.RecordingAttempt{
		SourceURI:        uri,
		DurationMillis:   dur,
		SourceKind:       model.SourceFile,
		OriginalFileName: originalName,
	}
	m.setStepLocked(StepReview)
	return nil
}

// StartFromVoice enters Review directly with an attempt rebuilt from a saved
// voice, so a library item can be re-converted without re-recording.
func (m *Machine) StartFromVoice(v *model.Voice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return ErrBusy
	}
	if m.step != StepIdle {
		return ErrInvalidStep
	}
	m.attempt = &model.RecordingAttempt{
		SourceURI:      v.URI,
		DurationMillis: v.DurationMillis,
		SourceKind:     v.SourceKind,
	}
	m.cfg.VoiceType = v.Type
	m.setStepLocked(StepReview)
	return nil
}

// Retake discards the attempt and returns to Idle with default config.
func (m *Machine) Retake() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return ErrBusy
	}
	if m.step != StepReview {
		return ErrInvalidStep
	}
	m.attempt = nil
	m.cfg = defaultModeConfig()
	m.setStepLocked(StepIdle)
	return nil
}

// Convert runs Review → Converting → Idle. On success the raw voice and the
// converted track are persisted and the completion callback fires. On
// failure the machine returns to Review with the attempt intact so the user
// can retry or retake.
func (m *Machine) Convert(ctx context.Context) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.step != StepReview {
		m.mu.Unlock()
		return ErrInvalidStep
	}
	m.busy = true
	gen := m.generation
	attempt := *m.attempt
	cfg := m.cfg
	bpm := m.bpm
	userID := m.userID
	m.setStepLocked(StepConverting)
	m.mu.Unlock()

	req := model.ConversionRequest{
		Mode:             cfg.Mode,
		TargetInstrument: cfg.TargetInstrument,
		StylePrompt:      cfg.StylePrompt,
		KeyHint:          cfg.KeyHint,
		TunePreset:       cfg.TunePreset,
		BPM:              bpm,
		AudioPath:        attempt.SourceURI,
	}

	convertedPath, convErr := m.gateway.Convert(ctx, userID, req)

	if m.staleOr(gen, func() { m.busy = false }) {
		logger.Info("discarding conversion result from a closed session")
		return nil
	}
	if convErr != nil {
		m.mu.Lock()
		m.busy = false
		if m.generation == gen {
			m.setStepLocked(StepReview)
		}
		m.mu.Unlock()
		return convErr
	}

	trackDur, err := m.prober.DurationMillis(ctx, convertedPath)
	if err != nil || trackDur <= 0 {
		logger.Warn("could not probe converted audio, keeping source duration",
			logger.String("path", convertedPath), logger.ErrorField(err))
		trackDur = attempt.DurationMillis
	}

	now := m.now()
	voice := &model.Voice{
		ID:             uuid.NewString(),
		UserID:         userID,
		Title:          attemptTitle(attempt, now),
		URI:            attempt.SourceURI,
		DurationMillis: attempt.DurationMillis,
		Type:           cfg.VoiceType,
		SourceKind:     attempt.SourceKind,
		CreatedAt:      now,
	}
	track := &model.Track{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           trackTitle(cfg, bpm),
		URI:             convertedPath,
		DurationMillis:  trackDur,
		OriginalVoiceID: voice.ID,
		CreatedAt:       now,
	}

	saveErr := m.saver.SaveVoice(ctx, voice)
	if saveErr == nil {
		saveErr = m.saver.SaveTrack(ctx, track)
	}

	m.mu.Lock()
	m.busy = false
	if m.generation != gen {
		m.mu.Unlock()
		return nil
	}
	if saveErr != nil {
		m.setStepLocked(StepReview)
		m.mu.Unlock()
		return fmt.Errorf("failed to persist conversion result: %w", saveErr)
	}
	m.attempt = nil
	m.cfg = defaultModeConfig()
	m.setStepLocked(StepIdle)
	ev := m.events
	m.mu.Unlock()

	if ev.OnComplete != nil {
		ev.OnComplete(voice, track)
	}
	return nil
}

// Close tears the flow down from any step: cancels a pending count-in,
// aborts capture, discards the attempt and resets config. Results of
// transitions still in flight are discarded via the generation counter.
// Close never errors.
func (m *Machine) Close() {
	m.mu.Lock()
	m.generation++
	cancel := m.cancelStart
	sess := m.session
	m.cancelStart = nil
	m.session = nil
	m.attempt = nil
	m.cfg = defaultModeConfig()
	m.busy = false
	m.setStepLocked(StepIdle)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sess != nil {
		sess.Abort()
	}
}

// staleOr locks, runs fn, and reports whether gen is stale. Caller-side
// sugar for the discard-after-Close checks.
func (m *Machine) staleOr(gen uint64, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	stale := m.generation != gen
	if stale && fn != nil {
		fn()
	}
	return stale
}

// setStepLocked updates the step and notifies. Caller holds m.mu.
func (m *Machine) setStepLocked(step Step) {
	if m.step == step {
		return
	}
	m.step = step
	if m.events.OnStep != nil {
		go m.events.OnStep(step)
	}
}

func attemptTitle(a model.RecordingAttempt, now time.Time) string {
	if a.OriginalFileName != "" {
		return a.OriginalFileName
	}
	return "Recording " + now.Format("2006-01-02 15:04:05")
}

func trackTitle(cfg ModeConfig, bpm int) string {
	if cfg.Mode == model.ModeAutoTune {
		return fmt.Sprintf("Tuned voice (%s, %d bpm)", cfg.TunePreset, bpm)
	}
	name := string(cfg.TargetInstrument)
	if cfg.StylePrompt != "" {
		name = cfg.StylePrompt
	}
	return fmt.Sprintf("%s (%d bpm)", name, bpm)
}
