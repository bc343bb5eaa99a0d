package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseImportName(t *testing.T) {
	userID, title, ok := parseImportName("7_beat_idea.wav")
	assert.True(t, ok)
	assert.Equal(t, int64(7), userID)
	assert.Equal(t, "beat_idea", title)

	userID, title, ok = parseImportName("42_.mp3")
	assert.True(t, ok)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, "Imported audio", title)

	_, _, ok = parseImportName("no-prefix.wav")
	assert.False(t, ok)

	_, _, ok = parseImportName("_leading.wav")
	assert.False(t, ok)

	_, _, ok = parseImportName("0_zero-user.wav")
	assert.False(t, ok)
}
