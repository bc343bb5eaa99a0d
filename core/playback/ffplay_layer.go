package playback

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"melodizr/model"
)

// FFplayLoader produces layers that play through ffplay, for local
// monitoring on the machine running the service. Pause and seek are
// implemented by restarting ffplay at an offset; ffplay has no live
// transport control over exec.
type FFplayLoader struct {
	FFplayPath string
}

// NewFFplayLoader derives the ffplay binary from the configured ffmpeg path,
// the same way the prober derives ffprobe. ffplay rejects ffmpeg-only flags
// and vice versa, so handing the wrong binary over is not recoverable at
// spawn time.
func NewFFplayLoader(ffmpegPath string) *FFplayLoader {
	return &FFplayLoader{FFplayPath: strings.Replace(ffmpegPath, "ffmpeg", "ffplay", 1)}
}

// Load verifies the audio file exists and returns a layer for it.
func (l *FFplayLoader) Load(ctx context.Context, track model.Track) (Layer, error) {
	if track.URI == "" {
		return nil, fmt.Errorf("track %s has no playable uri", track.ID)
	}
	if _, err := os.Stat(track.URI); err != nil {
		return nil, fmt.Errorf("layer audio not readable: %w", err)
	}
	rate := 1.0
	if track.PlaybackSettings != nil && track.PlaybackSettings.Rate > 0 {
		rate = track.PlaybackSettings.Rate
	}
	return &ffplayLayer{bin: l.FFplayPath, uri: track.URI, rate: rate}, nil
}

type ffplayLayer struct {
	mu     sync.Mutex
	bin    string
	uri    string
	rate   float64
	offset int64 // millis
	cmd    *exec.Cmd
}

func (f *ffplayLayer) spawnLocked() error {
	args := []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
	if f.offset > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", float64(f.offset)/1000.0))
	}
	if f.rate != 1.0 {
		// Preset tracks carry a tempo-mapping rate fixed at creation.
		args = append(args, "-af", fmt.Sprintf("atempo=%.4f", f.rate))
	}
	args = append(args, "-i", f.uri)

	cmd := exec.Command(f.bin, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffplay start failed: %w", err)
	}
	f.cmd = cmd
	go cmd.Wait()
	return nil
}

func (f *ffplayLayer) killLocked() {
	if f.cmd != nil && f.cmd.Process != nil {
		f.cmd.Process.Kill()
	}
	f.cmd = nil
}

func (f *ffplayLayer) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd != nil {
		return nil // already playing
	}
	return f.spawnLocked()
}

func (f *ffplayLayer) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killLocked()
	return nil
}

func (f *ffplayLayer) Seek(positionMillis int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offset = positionMillis
	if f.cmd != nil {
		f.killLocked()
		return f.spawnLocked()
	}
	return nil
}

func (f *ffplayLayer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killLocked()
	f.offset = 0
	return nil
}

func (f *ffplayLayer) Unload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killLocked()
}
