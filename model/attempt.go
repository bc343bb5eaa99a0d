package model

// RecordingAttempt is one pending, not-yet-persisted capture or upload
// awaiting conversion or discard. It is owned exclusively by the recording
// control machine for its lifetime: created when recording stops or a file is
// picked, destroyed when the sheet closes, the user retakes, or conversion
// succeeds.
type RecordingAttempt struct {
	SourceURI        string
	DurationMillis   int64
	SourceKind       SourceKind
	OriginalFileName string // Present iff SourceKind == SourceFile
}
