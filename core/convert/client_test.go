package convert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"melodizr/model"
)

func writeTempWav(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("RIFFfakewav"), 0644))
	return path
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c := NewClient(serverURL, t.TempDir())
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestConvertSendsAllFieldsAndSavesBody(t *testing.T) {
	var gotFields map[string]string
	var gotFileName string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/convert", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		f := r.MultipartForm.File["audio"]
		require.Len(t, f, 1)
		gotFileName = f[0].Filename

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("converted-bytes"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	audio := writeTempWav(t, "recording.wav")

	path, err := c.Convert(context.Background(), 42, model.ConversionRequest{
		Mode:             model.ModeInstrument,
		TargetInstrument: model.InstrumentDrum,
		StylePrompt:      "lofi drums",
		KeyHint:          model.KeyHintAuto,
		TunePreset:       model.TuneNatural,
		BPM:              120,
		AudioPath:        audio,
	})
	require.NoError(t, err)

	assert.Equal(t, "recording.wav", gotFileName)
	assert.Equal(t, "42", gotFields["user_id"])
	assert.Equal(t, "instrument", gotFields["mode"])
	assert.Equal(t, "120", gotFields["bpm"])
	assert.Equal(t, "lofi drums", gotFields["text_prompt"])
	assert.Equal(t, "drum", gotFields["instrument"])
	assert.Equal(t, "auto", gotFields["key_hint"])
	assert.Equal(t, "natural", gotFields["tune_preset"])

	assert.Equal(t, "converted_1700000000000.wav", filepath.Base(path))
	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("converted-bytes"), saved)
}

func TestConvertNon2xxIsConversionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Convert(context.Background(), 1, model.ConversionRequest{
		Mode:      model.ModeAutoTune,
		BPM:       90,
		AudioPath: writeTempWav(t, "a.wav"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConversionFailed)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestConvertUnreachableGateway(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	c.HTTPClient.Timeout = 200 * time.Millisecond

	_, err := c.Convert(context.Background(), 1, model.ConversionRequest{
		Mode:      model.ModeInstrument,
		BPM:       120,
		AudioPath: writeTempWav(t, "a.wav"),
	})
	assert.ErrorIs(t, err, ErrConversionFailed)
}

func TestConvertMissingLocalFile(t *testing.T) {
	c := newTestClient(t, "http://unused")
	_, err := c.Convert(context.Background(), 1, model.ConversionRequest{
		Mode:      model.ModeInstrument,
		BPM:       120,
		AudioPath: "/nonexistent/recording.wav",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConversionFailed)
}

func TestGenerateBeatbox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/generate", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Len(t, r.MultipartForm.File["timbre"], 1)
		require.Len(t, r.MultipartForm.File["rhythm"], 1)
		w.Write([]byte("loop"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	path, err := c.GenerateBeatbox(context.Background(),
		writeTempWav(t, "timbre.wav"), writeTempWav(t, "rhythm.wav"))
	require.NoError(t, err)
	assert.Equal(t, "tria_gen_1700000000000.wav", filepath.Base(path))
}
