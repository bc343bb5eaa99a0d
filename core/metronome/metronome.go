package metronome

import (
	"context"
	"sync"
	"time"
)

// Beat is one metronome tick. Cycle runs 0..3; the 0th beat of each cycle is
// the downbeat and flagged Strong for visual emphasis.
type Beat struct {
	Cycle  int
	Strong bool
}

// BeatInterval returns the period between beats at the given tempo.
func BeatInterval(bpm int) time.Duration {
	if bpm <= 0 {
		bpm = 120
	}
	return time.Duration(60000.0 / float64(bpm) * float64(time.Millisecond))
}

// Driver emits beat events at 60000/bpm millisecond intervals. Scheduling is
// deadline-based (nextDeadline += interval, sleep max(0, nextDeadline-now))
// so jitter in a single tick never accumulates into drift. The driver has no
// failure modes: it only starts and stops.
type Driver struct {
	mu      sync.Mutex
	onBeat  func(Beat)
	stop    chan struct{}
	bpmCh   chan int
	running bool
}

// NewDriver creates a driver that invokes onBeat on every tick. onBeat is
// called from the driver's goroutine and must not block.
func NewDriver(onBeat func(Beat)) *Driver {
	return &Driver{onBeat: onBeat}
}

// Start begins ticking at bpm, with the first beat emitted immediately.
// If the driver is already running it is restarted.
func (d *Driver) Start(bpm int) {
	d.mu.Lock()
	if d.running {
		close(d.stop)
	}
	d.stop = make(chan struct{})
	d.bpmCh = make(chan int, 1)
	d.running = true
	go d.run(bpm, d.stop, d.bpmCh)
	d.mu.Unlock()
}

// SetBPM changes the tempo of a running driver. The interval restarts at the
// new period from now; no beat is double-fired. A stopped driver ignores it.
func (d *Driver) SetBPM(bpm int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	// Drain a pending unconsumed change so the latest wins.
	select {
	case <-d.bpmCh:
	default:
	}
	d.bpmCh <- bpm
}

// Running reports whether the driver is ticking.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Stop cancels all pending ticks. Idempotent.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	close(d.stop)
	d.running = false
}

func (d *Driver) run(bpm int, stop <-chan struct{}, bpmCh <-chan int) {
	interval := BeatInterval(bpm)
	cycle := 0

	d.emit(Beat{Cycle: 0, Strong: true})

	next := time.Now().Add(interval)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case nb := <-bpmCh:
			interval = BeatInterval(nb)
			next = time.Now().Add(interval)
			resetTimer(timer, interval)
		case <-timer.C:
			cycle = (cycle + 1) % 4
			d.emit(Beat{Cycle: cycle, Strong: cycle == 0})
			next = next.Add(interval)
			wait := time.Until(next)
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
		}
	}
}

func (d *Driver) emit(b Beat) {
	if d.onBeat != nil {
		d.onBeat(b)
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// CountIn ticks beats times at the bpm period, invoking onTick with the
// remaining count (beats, beats-1, ..., 1) and returning after the last tick
// period elapses. The first tick fires immediately. Cancelling ctx aborts the
// count-in and returns ctx.Err().
func CountIn(ctx context.Context, bpm, beats int, onTick func(remaining int)) error {
	if beats <= 0 {
		return nil
	}
	interval := BeatInterval(bpm)
	next := time.Now()

	for remaining := beats; remaining > 0; remaining-- {
		if onTick != nil {
			onTick(remaining)
		}
		next = next.Add(interval)
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
