package playback

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"melodizr/model"
)

func TestFFplayLoaderDerivesBinaryFromFFmpegPath(t *testing.T) {
	assert.Equal(t, "ffplay", NewFFplayLoader("ffmpeg").FFplayPath)
	assert.Equal(t, "/usr/local/bin/ffplay", NewFFplayLoader("/usr/local/bin/ffmpeg").FFplayPath)
	assert.Equal(t, "/opt/tools/ffplay", NewFFplayLoader("/opt/tools/ffmpeg").FFplayPath)
}

func TestFFplayLayerUsesDerivedBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0644))

	loader := NewFFplayLoader("/usr/bin/ffmpeg")
	layer, err := loader.Load(context.Background(), model.Track{ID: "t1", URI: path})
	require.NoError(t, err)

	fl, ok := layer.(*ffplayLayer)
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/ffplay", fl.bin)
}

func TestFFplayLoaderRejectsMissingFile(t *testing.T) {
	loader := NewFFplayLoader("ffmpeg")

	_, err := loader.Load(context.Background(), model.Track{ID: "t1", URI: ""})
	assert.Error(t, err)

	_, err = loader.Load(context.Background(), model.Track{ID: "t1", URI: "/nonexistent/take.wav"})
	assert.Error(t, err)
}
