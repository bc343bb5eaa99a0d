package model

import (
	"fmt"
	"time"
)

// Track represents one playable layer of a project. Tracks are created when a
// conversion completes or when a preset sample is confirmed, and are owned by
// exactly one project. A copy is also kept in the project-independent track
// library table.
type Track struct {
	ID               string            `json:"id"`
	UserID           int64             `json:"userId,omitempty"`
	Title            string            `json:"title"`
	URI              string            `json:"uri"` // Local file path, object path, or bundled asset handle
	DurationMillis   int64             `json:"durationMillis"`
	IsMuted          bool              `json:"isMuted"`
	OriginalVoiceID  string            `json:"originalVoiceId,omitempty"` // One-way reference, never enforced
	PlaybackSettings *PlaybackSettings `json:"playbackSettings,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// PlaybackSettings carries tempo mapping for preset-type tracks.
// Rate is fixed at TargetBPM/OriginalBPM when the track is created and never
// renegotiated. LoopCount is stored but currently unused by playback.
type PlaybackSettings struct {
	Type        string  `json:"type"` // "preset" or "beatbox"
	OriginalBPM int     `json:"originalBpm"`
	TargetBPM   int     `json:"targetBpm"`
	TargetBars  int     `json:"targetBars"`
	Rate        float64 `json:"rate"`
	LoopCount   int     `json:"loopCount"`
}

// PresetParams holds the derived playback parameters for a preset sample
// mapped to a session tempo.
type PresetParams struct {
	Rate                float64
	TotalDurationMillis int64
	DisplayDuration     string
}

// CalculatePresetParams maps a preset sample recorded at originalBpm onto a
// session running at targetBpm over targetBars bars.
func CalculatePresetParams(originalBpm, targetBpm, targetBars int) PresetParams {
	rate := float64(targetBpm) / float64(originalBpm)

	targetOneBarDurationSec := (60.0 / float64(targetBpm)) * 4
	totalDurationSec := targetOneBarDurationSec * float64(targetBars)
	totalMillis := int64(totalDurationSec*1000 + 0.5)

	return PresetParams{
		Rate:                rate,
		TotalDurationMillis: totalMillis,
		DisplayDuration:     FormatMillis(totalMillis),
	}
}

// FormatMillis renders a millisecond duration as m:ss.
func FormatMillis(ms int64) string {
	seconds := ms / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
