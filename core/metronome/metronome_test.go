package metronome

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// beatCollector records beats thread-safely.
type beatCollector struct {
	mu    sync.Mutex
	beats []Beat
	times []time.Time
}

func (c *beatCollector) add(b Beat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beats = append(c.beats, b)
	c.times = append(c.times, time.Now())
}

func (c *beatCollector) snapshot() []Beat {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Beat, len(c.beats))
	copy(out, c.beats)
	return out
}

func (c *beatCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.beats)
}

func TestBeatInterval(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, BeatInterval(120))
	assert.Equal(t, time.Second, BeatInterval(60))
	// Zero or negative tempo falls back to 120.
	assert.Equal(t, 500*time.Millisecond, BeatInterval(0))
}

func TestDriverEmitsImmediatelyAndCycles(t *testing.T) {
	c := &beatCollector{}
	d := NewDriver(c.add)

	// 3000 bpm = 20ms interval keeps the test fast.
	d.Start(3000)
	defer d.Stop()

	require.Eventually(t, func() bool { return c.count() >= 6 }, time.Second, 5*time.Millisecond)
	d.Stop()

	beats := c.snapshot()
	require.GreaterOrEqual(t, len(beats), 6)

	// First beat fires at t=0 and is the strong downbeat.
	assert.Equal(t, 0, beats[0].Cycle)
	assert.True(t, beats[0].Strong)

	for i, b := range beats[:6] {
		assert.Equal(t, i%4, b.Cycle, "beat %d cycle", i)
		assert.Equal(t, b.Cycle == 0, b.Strong, "beat %d strong flag", i)
	}
}

func TestDriverStopIdempotent(t *testing.T) {
	c := &beatCollector{}
	d := NewDriver(c.add)
	d.Start(3000)
	d.Stop()
	d.Stop() // second stop must not panic

	n := c.count()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, c.count(), "no ticks after stop")
}

func TestDriverSetBPMDoesNotDoubleFire(t *testing.T) {
	c := &beatCollector{}
	d := NewDriver(c.add)

	d.Start(60) // 1s interval: only the immediate tick lands during the test
	defer d.Stop()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, c.count())

	// Switching tempo restarts the interval; nothing fires at the switch
	// itself.
	d.SetBPM(3000)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, c.count(), "no tick at the moment of the bpm change")

	// But the new 20ms period takes effect.
	require.Eventually(t, func() bool { return c.count() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestDriverNoCumulativeDrift(t *testing.T) {
	c := &beatCollector{}
	d := NewDriver(c.add)

	const ticks = 20
	d.Start(3000) // 20ms interval
	defer d.Stop()

	require.Eventually(t, func() bool { return c.count() >= ticks }, 3*time.Second, 5*time.Millisecond)
	d.Stop()

	c.mu.Lock()
	elapsed := c.times[ticks-1].Sub(c.times[0])
	c.mu.Unlock()

	// 19 intervals of 20ms = 380ms. Deadline correction keeps the total
	// close even when individual ticks jitter.
	expected := 19 * 20 * time.Millisecond
	assert.InDelta(t, float64(expected), float64(elapsed), float64(120*time.Millisecond))
}

func TestCountIn(t *testing.T) {
	var got []int
	start := time.Now()
	err := CountIn(context.Background(), 3000, 4, func(remaining int) {
		got = append(got, remaining)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 2, 1}, got)
	// 4 beats at 20ms: returns after roughly 80ms.
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCountInCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var got []int
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	err := CountIn(ctx, 60, 4, func(remaining int) { got = append(got, remaining) })
	require.ErrorIs(t, err, context.Canceled)
	assert.NotEmpty(t, got)
	assert.Less(t, len(got), 4)
}
