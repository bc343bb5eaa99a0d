package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"melodizr/model"
)

// fakeLayer records transport commands.
type fakeLayer struct {
	mu       sync.Mutex
	plays    int
	pauses   int
	stops    int
	seeks    []int64
	unloaded bool
	playErr  error
}

func (f *fakeLayer) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.plays++
	return nil
}

func (f *fakeLayer) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return nil
}

func (f *fakeLayer) Seek(pos int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, pos)
	return nil
}

func (f *fakeLayer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeLayer) Unload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloaded = true
}

func (f *fakeLayer) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

// fakeLoader maps track IDs onto layers, failing the listed IDs.
type fakeLoader struct {
	layers map[string]*fakeLayer
	fail   map[string]bool
}

func (l *fakeLoader) Load(ctx context.Context, track model.Track) (Layer, error) {
	if l.fail[track.ID] {
		return nil, errors.New("decode failed")
	}
	layer := &fakeLayer{}
	l.layers[track.ID] = layer
	return layer, nil
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{layers: map[string]*fakeLayer{}, fail: map[string]bool{}}
}

func tracks(durations ...int64) []model.Track {
	out := make([]model.Track, len(durations))
	for i, d := range durations {
		out[i] = model.Track{ID: string(rune('a' + i)), Title: "t", URI: "x.wav", DurationMillis: d}
	}
	return out
}

func TestMaxDurationIsMaxNotSum(t *testing.T) {
	loader := newFakeLoader()
	e := NewEngine(loader)
	defer e.Unload()

	require.NoError(t, e.Load(context.Background(), tracks(3000, 8000, 5000)))
	assert.Equal(t, int64(8000), e.MaxDuration())
	assert.Equal(t, 3, e.LoadedLayers())
}

func TestSeekClampsToTimeline(t *testing.T) {
	loader := newFakeLoader()
	e := NewEngine(loader)
	defer e.Unload()
	require.NoError(t, e.Load(context.Background(), tracks(8000)))

	e.Seek(9000)
	assert.Equal(t, int64(8000), e.Position())

	e.Seek(-50)
	assert.Equal(t, int64(0), e.Position())

	// All layers were told the clamped position.
	layer := loader.layers["a"]
	layer.mu.Lock()
	defer layer.mu.Unlock()
	assert.Equal(t, []int64{8000, 0}, layer.seeks)
}

func TestFailedLayerIsSkippedNotFatal(t *testing.T) {
	loader := newFakeLoader()
	loader.fail["b"] = true
	e := NewEngine(loader)
	defer e.Unload()

	// One of three layers fails to load; the other two carry on, and the
	// timeline shrinks to the longest surviving layer.
	require.NoError(t, e.Load(context.Background(), []model.Track{
		{ID: "a", DurationMillis: 3000},
		{ID: "b", DurationMillis: 9000},
		{ID: "c", DurationMillis: 5000},
	}))
	assert.Equal(t, 2, e.LoadedLayers())
	assert.Equal(t, int64(5000), e.MaxDuration())

	e.Play()
	defer e.Stop()
	assert.Equal(t, 1, loader.layers["a"].playCount())
	assert.Equal(t, 1, loader.layers["c"].playCount())
	assert.True(t, e.IsPlaying())
}

func TestLayerCommandFailureExcludesLayer(t *testing.T) {
	loader := newFakeLoader()
	e := NewEngine(loader)
	defer e.Unload()
	require.NoError(t, e.Load(context.Background(), tracks(4000, 4000)))

	loader.layers["a"].playErr = errors.New("backend gone")
	e.Play()
	e.Pause()

	// The broken layer got no further commands after the failed play.
	broken := loader.layers["a"]
	healthy := loader.layers["b"]
	broken.mu.Lock()
	assert.Equal(t, 0, broken.pauses)
	broken.mu.Unlock()
	healthy.mu.Lock()
	assert.Equal(t, 1, healthy.pauses)
	healthy.mu.Unlock()
}

func TestSharedCounterAdvancesAndTerminates(t *testing.T) {
	loader := newFakeLoader()
	e := NewEngine(loader)
	e.tick = 5 * time.Millisecond
	defer e.Unload()

	require.NoError(t, e.Load(context.Background(), tracks(40, 60)))

	var mu sync.Mutex
	var positions []int64
	e.SetPositionListener(func(pos int64, playing bool) {
		mu.Lock()
		positions = append(positions, pos)
		mu.Unlock()
	})

	e.Play()

	// The counter reaches maxDuration and the transport resets itself.
	require.Eventually(t, func() bool {
		return !e.IsPlaying() && e.Position() == 0
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var sawEnd bool
	for _, p := range positions {
		assert.LessOrEqual(t, p, int64(60))
		if p == 60 {
			sawEnd = true
		}
	}
	assert.True(t, sawEnd, "counter reached the timeline end")

	layer := loader.layers["b"]
	layer.mu.Lock()
	defer layer.mu.Unlock()
	assert.GreaterOrEqual(t, layer.stops, 1)
}

func TestPlayFromEndRewinds(t *testing.T) {
	loader := newFakeLoader()
	e := NewEngine(loader)
	defer e.Unload()
	require.NoError(t, e.Load(context.Background(), tracks(5000)))

	e.Seek(5000)
	e.Play()
	defer e.Stop()

	assert.Equal(t, int64(0), e.Position())
	layer := loader.layers["a"]
	layer.mu.Lock()
	defer layer.mu.Unlock()
	assert.Contains(t, layer.seeks, int64(0))
}

func TestUnloadReleasesLayers(t *testing.T) {
	loader := newFakeLoader()
	e := NewEngine(loader)
	require.NoError(t, e.Load(context.Background(), tracks(1000, 2000)))

	e.Unload()
	assert.Equal(t, 0, e.LoadedLayers())
	assert.Equal(t, int64(0), e.MaxDuration())
	for _, l := range loader.layers {
		l.mu.Lock()
		assert.True(t, l.unloaded)
		l.mu.Unlock()
	}

	// Reload after unload starts a fresh session.
	require.NoError(t, e.Load(context.Background(), tracks(3000)))
	assert.Equal(t, int64(3000), e.MaxDuration())
}
