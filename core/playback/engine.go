package playback

import (
	"context"
	"sync"
	"time"

	"melodizr/logger"
	"melodizr/model"
)

// Layer is one track's loaded audio within the transport. Implementations
// must tolerate commands arriving in any order.
type Layer interface {
	Play() error
	Pause() error
	Seek(positionMillis int64) error
	Stop() error
	Unload()
}

// Loader turns a track into a ready-to-play layer.
type Loader interface {
	Load(ctx context.Context, track model.Track) (Layer, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, track model.Track) (Layer, error)

func (f LoaderFunc) Load(ctx context.Context, track model.Track) (Layer, error) {
	return f(ctx, track)
}

// DefaultTick is the shared position counter period.
const DefaultTick = 100 * time.Millisecond

type layerState struct {
	layer  Layer
	track  model.Track
	failed bool
}

// Engine plays all loaded layers of a project as one synchronized transport.
// The timeline is driven by a single shared position counter rather than the
// layers' own reported positions: the synchronization illusion only holds if
// the UI advances uniformly, and N independently-reported positions jitter
// visibly even when the audio stays acceptably aligned.
type Engine struct {
	mu     sync.Mutex
	loader Loader
	tick   time.Duration

	layers      []*layerState
	loaded      bool
	playing     bool
	position    int64 // millis
	maxDuration int64 // millis, max of layer durations (not the sum)
	stopTick    chan struct{}

	onPosition func(positionMillis int64, playing bool)
}

// NewEngine creates a transport over the given layer loader.
func NewEngine(loader Loader) *Engine {
	return &Engine{loader: loader, tick: DefaultTick}
}

// SetPositionListener registers a callback invoked on every counter tick and
// on transport state changes. Must be set before Load.
func (e *Engine) SetPositionListener(fn func(positionMillis int64, playing bool)) {
	e.mu.Lock()
	e.onPosition = fn
	e.mu.Unlock()
}

// Load asynchronously loads every track into a layer. Tracks that fail to
// load are skipped with a warning; playback proceeds with whatever subset
// loaded. Any previously loaded set is unloaded first.
func (e *Engine) Load(ctx context.Context, tracks []model.Track) error {
	e.Unload()

	var states []*layerState
	var max int64
	for _, t := range tracks {
		layer, err := e.loader.Load(ctx, t)
		if err != nil {
			logger.Warn("skipping layer that failed to load",
				logger.String("trackId", t.ID),
				logger.String("title", t.Title),
				logger.ErrorField(err))
			continue
		}
		states = append(states, &layerState{layer: layer, track: t})
		if t.DurationMillis > max {
			max = t.DurationMillis
		}
	}

	e.mu.Lock()
	e.layers = states
	e.maxDuration = max
	e.loaded = true
	e.position = 0
	e.mu.Unlock()

	logger.Info("project layers loaded",
		logger.Int("requested", len(tracks)),
		logger.Int("loaded", len(states)),
		logger.Int64("maxDurationMillis", max))
	return nil
}

// Play issues play to every healthy layer and starts the shared counter.
// Playing from the end of the timeline rewinds to 0 first.
func (e *Engine) Play() {
	e.mu.Lock()
	if !e.loaded || len(e.layers) == 0 || e.playing {
		e.mu.Unlock()
		return
	}
	if e.position >= e.maxDuration {
		e.position = 0
		e.dispatchLocked(func(l Layer) error { return l.Seek(0) }, "seek")
	}
	e.dispatchLocked(func(l Layer) error { return l.Play() }, "play")
	e.playing = true
	e.stopTick = make(chan struct{})
	stop := e.stopTick
	e.mu.Unlock()

	go e.tickLoop(stop)
	e.notify()
}

// Pause issues pause to every healthy layer; the counter halts where it is.
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}
	e.haltTickLocked()
	e.dispatchLocked(func(l Layer) error { return l.Pause() }, "pause")
	e.mu.Unlock()
	e.notify()
}

// Seek clamps to [0, maxDuration], updates the shared counter immediately
// (optimistic), and issues the seek to every healthy layer.
func (e *Engine) Seek(positionMillis int64) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return
	}
	if positionMillis < 0 {
		positionMillis = 0
	}
	if positionMillis > e.maxDuration {
		positionMillis = e.maxDuration
	}
	e.position = positionMillis
	e.dispatchLocked(func(l Layer) error { return l.Seek(positionMillis) }, "seek")
	e.mu.Unlock()
	e.notify()
}

// Stop issues stop to every healthy layer and resets the counter to 0.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.haltTickLocked()
	e.position = 0
	if e.loaded {
		e.dispatchLocked(func(l Layer) error { return l.Stop() }, "stop")
	}
	e.mu.Unlock()
	e.notify()
}

// Unload releases all layer resources. Must be called before loading a
// different track set and when the owning view is dismissed.
func (e *Engine) Unload() {
	e.mu.Lock()
	e.haltTickLocked()
	layers := e.layers
	e.layers = nil
	e.loaded = false
	e.position = 0
	e.maxDuration = 0
	e.mu.Unlock()

	for _, st := range layers {
		st.layer.Unload()
	}
}

// Position returns the shared counter in milliseconds.
func (e *Engine) Position() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// MaxDuration returns the timeline length: the longest loaded layer.
func (e *Engine) MaxDuration() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxDuration
}

// IsPlaying reports whether the transport is running.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// LoadedLayers returns how many layers survived loading.
func (e *Engine) LoadedLayers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.layers)
}

// dispatchLocked sends a command to every non-failed layer. A layer failing
// a command is logged and excluded from subsequent commands for the rest of
// this load session; it never aborts the others. Caller holds e.mu.
func (e *Engine) dispatchLocked(cmd func(Layer) error, name string) {
	for _, st := range e.layers {
		if st.failed {
			continue
		}
		if err := cmd(st.layer); err != nil {
			st.failed = true
			logger.Warn("layer command failed, excluding layer",
				logger.String("command", name),
				logger.String("trackId", st.track.ID),
				logger.ErrorField(err))
		}
	}
}

// haltTickLocked stops the counter goroutine. Caller holds e.mu.
func (e *Engine) haltTickLocked() {
	if e.stopTick != nil {
		close(e.stopTick)
		e.stopTick = nil
	}
	e.playing = false
}

func (e *Engine) tickLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	step := e.tick.Milliseconds()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if !e.playing {
				e.mu.Unlock()
				return
			}
			e.position += step
			done := e.position >= e.maxDuration
			if done {
				e.position = e.maxDuration
			}
			e.mu.Unlock()
			e.notify()

			if done {
				// End of the longest layer: stop and reset.
				e.Stop()
				return
			}
		}
	}
}

func (e *Engine) notify() {
	e.mu.Lock()
	fn := e.onPosition
	pos := e.position
	playing := e.playing
	e.mu.Unlock()
	if fn != nil {
		fn(pos, playing)
	}
}
