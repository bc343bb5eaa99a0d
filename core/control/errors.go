package control

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStep is returned when a command does not apply to the
	// machine's current step.
	ErrInvalidStep = errors.New("command not valid in current step")

	// ErrBusy is returned when a transition is already in flight.
	ErrBusy = errors.New("another transition is in flight")

	// ErrFileTooLong is matched with errors.Is against *FileTooLongError.
	ErrFileTooLong = errors.New("audio file too long")
)

// FileTooLongError rejects an uploaded file that exceeds the session's
// capture ceiling. AllowedMillis is the ceiling without the upload tolerance,
// so the message tells the user the real limit.
type FileTooLongError struct {
	AllowedMillis int64
	ActualMillis  int64
}

func (e *FileTooLongError) Error() string {
	return fmt.Sprintf("audio is %.1fs, limit is %.1fs",
		float64(e.ActualMillis)/1000, float64(e.AllowedMillis)/1000)
}

func (e *FileTooLongError) Is(target error) bool {
	return target == ErrFileTooLong
}

// AllowedSeconds is the limit the user may be told about.
func (e *FileTooLongError) AllowedSeconds() float64 {
	return float64(e.AllowedMillis) / 1000
}
