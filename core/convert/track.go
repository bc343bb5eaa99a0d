package convert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"melodizr/model"
)

// NewGeneratedTrack builds the library entry for a generated beatbox loop.
// The timbre voice is recorded as the track's origin.
func NewGeneratedTrack(userID int64, path string, durationMillis int64, timbreVoiceID string) *model.Track {
	now := time.Now()
	return &model.Track{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           fmt.Sprintf("Beatbox loop %s", now.Format("15:04:05")),
		URI:             path,
		DurationMillis:  durationMillis,
		OriginalVoiceID: timbreVoiceID,
		PlaybackSettings: &model.PlaybackSettings{
			Type: "beatbox",
			Rate: 1.0,
		},
		CreatedAt: now,
	}
}
