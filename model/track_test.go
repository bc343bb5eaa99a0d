package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculatePresetParams(t *testing.T) {
	// A 90 bpm sample mapped onto a 120 bpm, 4 bar session speeds up by a
	// third and fills exactly 8 seconds.
	params := CalculatePresetParams(90, 120, 4)
	assert.InDelta(t, 120.0/90.0, params.Rate, 0.0001)
	assert.Equal(t, int64(8000), params.TotalDurationMillis)
	assert.Equal(t, "0:08", params.DisplayDuration)

	// Same tempo keeps the rate at 1.
	params = CalculatePresetParams(120, 120, 2)
	assert.Equal(t, 1.0, params.Rate)
	assert.Equal(t, int64(4000), params.TotalDurationMillis)
}

func TestFormatMillis(t *testing.T) {
	assert.Equal(t, "0:00", FormatMillis(0))
	assert.Equal(t, "0:08", FormatMillis(8000))
	assert.Equal(t, "1:05", FormatMillis(65000))
	assert.Equal(t, "10:00", FormatMillis(600000))
}

func TestClampBPM(t *testing.T) {
	assert.Equal(t, 60, ClampBPM(10))
	assert.Equal(t, 120, ClampBPM(120))
	assert.Equal(t, 180, ClampBPM(999))
}

func TestProjectActiveTracks(t *testing.T) {
	p := &Project{Tracks: []Track{
		{ID: "a"},
		{ID: "b", IsMuted: true},
		{ID: "c"},
	}}

	active := p.ActiveTracks()
	assert.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "c", active[1].ID)

	assert.NotNil(t, p.FindTrack("b"))
	assert.Nil(t, p.FindTrack("missing"))
}
