package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"melodizr/logger"
	"melodizr/model"
)

// ErrConversionFailed is returned when the remote gateway rejects or cannot
// process an upload. The wrapped error carries the status and body snippet.
var ErrConversionFailed = errors.New("conversion failed")

// Client talks to the melody conversion gateway. The gateway accepts one
// multipart upload per request and answers with the converted audio bytes
// directly in the response body.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	dataDir    string
	now        func() time.Time
}

// NewClient creates a gateway client. Conversion is slow server-side, so the
// timeout is generous compared to ordinary API calls.
func NewClient(baseURL, dataDir string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		dataDir: dataDir,
		now:     time.Now,
	}
}

// Convert uploads a recording and returns the local path of the converted
// audio. The gateway is trusted on format: whatever bytes come back are
// written as-is to converted_<unix-ms>.wav under the data directory.
func (c *Client) Convert(ctx context.Context, userID int64, req model.ConversionRequest) (string, error) {
	logger.Info("Uploading recording for conversion",
		logger.String("audioPath", req.AudioPath),
		logger.String("mode", string(req.Mode)),
		logger.Int("bpm", req.BPM))

	fields := map[string]string{
		"user_id":     strconv.FormatInt(userID, 10),
		"mode":        string(req.Mode),
		"bpm":         strconv.Itoa(req.BPM),
		"text_prompt": req.StylePrompt,
		"instrument":  string(req.TargetInstrument),
		"key_hint":    req.KeyHint,
		"tune_preset": string(req.TunePreset),
	}
	files := map[string]string{"audio": req.AudioPath}

	body, err := c.post(ctx, c.BaseURL+"/convert", fields, files)
	if err != nil {
		return "", err
	}
	return c.saveResult("converted", body)
}

// GenerateBeatbox sends a timbre sample and a rhythm sample to the beatbox
// gateway and returns the local path of the generated loop.
func (c *Client) GenerateBeatbox(ctx context.Context, timbrePath, rhythmPath string) (string, error) {
	logger.Info("Requesting beatbox generation",
		logger.String("timbre", timbrePath),
		logger.String("rhythm", rhythmPath))

	files := map[string]string{
		"timbre": timbrePath,
		"rhythm": rhythmPath,
	}
	body, err := c.post(ctx, c.BaseURL+"/generate", nil, files)
	if err != nil {
		return "", err
	}
	return c.saveResult("tria_gen", body)
}

// post performs a multipart POST and returns the response body. Any non-2xx
// status is surfaced as ErrConversionFailed.
func (c *Client) post(ctx context.Context, url string, fields, files map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", path, err)
		}
		part, err := w.CreateFormFile(name, filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("stage upload %s: %w", path, err)
		}
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrConversionFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := body
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		logger.Error("Conversion gateway returned error",
			logger.Int("status", resp.StatusCode),
			logger.String("body", string(snippet)))
		return nil, fmt.Errorf("%w: status %d: %s", ErrConversionFailed, resp.StatusCode, snippet)
	}
	return body, nil
}

func (c *Client) saveResult(prefix string, audio []byte) (string, error) {
	if err := os.MkdirAll(c.dataDir, 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	name := fmt.Sprintf("%s_%d.wav", prefix, c.now().UnixMilli())
	path := filepath.Join(c.dataDir, name)
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return "", fmt.Errorf("write converted audio: %w", err)
	}
	logger.Info("Saved converted audio", logger.String("path", path), logger.Int("bytes", len(audio)))
	return path, nil
}
