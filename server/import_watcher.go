package server

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"melodizr/logger"
	"melodizr/model"
)

// The import watcher turns audio files dropped into the import directory
// into library voices. File names carry the owner: <userID>_<title>.<ext>,
// e.g. "7_beat_idea.wav". Files without a user prefix are skipped.

var importExtensions = map[string]bool{
	".wav": true,
	".mp3": true,
	".m4a": true,
	".ogg": true,
}

// StartImportWatcher watches the import directory until ctx is cancelled.
func (h *APIHandler) StartImportWatcher(ctx context.Context) error {
	if err := os.MkdirAll(h.cfg.ImportDir, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(h.cfg.ImportDir); err != nil {
		watcher.Close()
		return err
	}

	logger.Info("import watcher started", logger.String("dir", h.cfg.ImportDir))
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if !importExtensions[strings.ToLower(filepath.Ext(event.Name))] {
					continue
				}
				// Give the writer a moment to finish the file.
				time.Sleep(500 * time.Millisecond)
				h.importVoiceFile(ctx, event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("import watcher error", logger.ErrorField(err))
			}
		}
	}()
	return nil
}

func (h *APIHandler) importVoiceFile(ctx context.Context, path string) {
	base := filepath.Base(path)
	userID, title, ok := parseImportName(base)
	if !ok {
		logger.Warn("import file has no user prefix, skipping", logger.String("file", base))
		return
	}

	dur, err := h.prober.DurationMillis(ctx, path)
	if err != nil {
		logger.Warn("could not probe imported file, skipping",
			logger.String("file", base), logger.ErrorField(err))
		return
	}

	if err := os.MkdirAll(h.cfg.VoiceDir, 0755); err != nil {
		logger.Error("could not create voice dir", logger.ErrorField(err))
		return
	}
	dest := filepath.Join(h.cfg.VoiceDir, base)
	if err := os.Rename(path, dest); err != nil {
		logger.Error("could not move imported file", logger.ErrorField(err))
		return
	}

	voice := &model.Voice{
		ID:             uuid.NewString(),
		UserID:         userID,
		Title:          title,
		URI:            dest,
		DurationMillis: dur,
		Type:           model.VoiceHumming,
		SourceKind:     model.SourceFile,
		CreatedAt:      time.Now(),
	}
	if err := h.voiceRepo.CreateVoice(voice); err != nil {
		logger.Error("could not save imported voice", logger.ErrorField(err))
		return
	}

	logger.Info("imported voice",
		logger.String("title", title),
		logger.Int64("userId", userID),
		logger.Int64("durationMillis", dur))
}

// parseImportName splits "<userID>_<title>.<ext>" into its parts.
func parseImportName(base string) (int64, string, bool) {
	name := strings.TrimSuffix(base, filepath.Ext(base))
	idx := strings.Index(name, "_")
	if idx <= 0 {
		return 0, "", false
	}
	userID, err := strconv.ParseInt(name[:idx], 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", false
	}
	title := strings.TrimSpace(name[idx+1:])
	if title == "" {
		title = "Imported audio"
	}
	return userID, title, true
}
