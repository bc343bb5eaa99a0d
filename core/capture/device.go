package capture

import (
	"context"
	"errors"
)

// Capture error taxonomy. Permission and device errors are recoverable by
// re-requesting; ErrNoActiveCapture is an internal misuse guard that callers
// treat as a no-op.
var (
	ErrPermissionDenied  = errors.New("capture: microphone permission denied")
	ErrDeviceUnavailable = errors.New("capture: recording device unavailable")
	ErrNoActiveCapture   = errors.New("capture: no active capture")
)

// Device abstracts the hardware recording resource. The production
// implementation records through ffmpeg; tests use a fake.
type Device interface {
	// Open acquires the device. It fails with ErrPermissionDenied if audio
	// input access is refused and ErrDeviceUnavailable if the device cannot
	// be acquired.
	Open(ctx context.Context) error
	// Start begins writing captured audio to a scratch file.
	Start(ctx context.Context) error
	// Stop finishes the capture and returns the audio file and its duration.
	Stop(ctx context.Context) (uri string, durationMillis int64, err error)
	// Abort force-releases the device and discards any in-progress file.
	Abort()
}
