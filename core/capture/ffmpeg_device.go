package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"melodizr/logger"
)

// DurationFunc probes the duration of a finished capture file in
// milliseconds.
type DurationFunc func(path string) (int64, error)

// FFmpegDevice records from the system audio input by spawning ffmpeg, the
// same binary the rest of the pipeline already depends on.
type FFmpegDevice struct {
	ffmpegPath string
	inFormat   string // e.g. "pulse", "alsa", "avfoundation"
	inDevice   string // e.g. "default"
	tmpDir     string
	probe      DurationFunc

	mu      sync.Mutex
	cmd     *exec.Cmd
	outFile string
	stderr  *strings.Builder
}

// NewFFmpegDevice creates a device recording through ffmpeg into tmpDir.
func NewFFmpegDevice(ffmpegPath, inFormat, inDevice, tmpDir string, probe DurationFunc) *FFmpegDevice {
	return &FFmpegDevice{
		ffmpegPath: ffmpegPath,
		inFormat:   inFormat,
		inDevice:   inDevice,
		tmpDir:     tmpDir,
		probe:      probe,
	}
}

// Open verifies the ffmpeg binary and the scratch directory are usable.
func (d *FFmpegDevice) Open(ctx context.Context) error {
	if _, err := exec.LookPath(d.ffmpegPath); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := os.MkdirAll(d.tmpDir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

// Start spawns ffmpeg recording from the configured input into a scratch
// wav file.
func (d *FFmpegDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd != nil {
		return ErrDeviceUnavailable
	}

	d.outFile = filepath.Join(d.tmpDir, fmt.Sprintf("capture_%d.wav", time.Now().UnixMilli()))

	args := []string{
		"-f", d.inFormat,
		"-i", d.inDevice,
		"-ac", "1",
		"-ar", "44100",
		"-y", d.outFile,
	}
	cmd := exec.Command(d.ffmpegPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		d.outFile = ""
		return classifyDeviceErr(err, stderr.String())
	}
	d.cmd = cmd
	d.stderr = &stderr
	logger.Debug("ffmpeg capture started", logger.String("out", d.outFile))
	return nil
}

// Stop interrupts ffmpeg so it finalizes the wav header, waits for it to
// exit, and probes the result.
func (d *FFmpegDevice) Stop(ctx context.Context) (string, int64, error) {
	d.mu.Lock()
	cmd := d.cmd
	out := d.outFile
	stderr := d.stderr
	d.cmd = nil
	d.mu.Unlock()

	if cmd == nil {
		return "", 0, ErrNoActiveCapture
	}

	// SIGINT lets ffmpeg flush and close the container cleanly.
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		<-done
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
	}

	if _, err := os.Stat(out); err != nil {
		msg := ""
		if stderr != nil {
			msg = stderr.String()
		}
		return "", 0, classifyDeviceErr(fmt.Errorf("capture produced no file: %w", err), msg)
	}

	var dur int64
	if d.probe != nil {
		v, err := d.probe(out)
		if err != nil {
			logger.Warn("could not probe capture duration", logger.ErrorField(err))
		} else {
			dur = v
		}
	}
	return out, dur, nil
}

// Abort kills any in-flight recorder and removes its scratch file.
func (d *FFmpegDevice) Abort() {
	d.mu.Lock()
	cmd := d.cmd
	out := d.outFile
	d.cmd = nil
	d.outFile = ""
	d.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
		cmd.Wait()
	}
	if out != "" {
		os.Remove(out)
	}
}

// classifyDeviceErr maps raw process errors onto the capture taxonomy. Input
// access refusal surfaces as a permission problem; everything else means the
// device could not be acquired.
func classifyDeviceErr(err error, stderr string) error {
	lower := strings.ToLower(stderr)
	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "access denied") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
