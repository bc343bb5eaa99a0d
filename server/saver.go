package server

import (
	"context"

	"melodizr/logger"
	"melodizr/model"
	"melodizr/repository"
	"melodizr/storage"
)

// conversionSaver persists conversion results for the control machine.
// Audio stays on local disk (the playback engine reads files); a copy is
// mirrored to MinIO so clients can fetch it through the /audio/ proxy. A
// failed mirror is logged, not fatal.
type conversionSaver struct {
	voiceRepo repository.VoiceRepository
	trackRepo repository.TrackRepository
}

func (s *conversionSaver) SaveVoice(ctx context.Context, v *model.Voice) error {
	if _, err := storage.UploadAudioFile(ctx, "voices", v.URI); err != nil {
		logger.Warn("voice mirror upload failed", logger.String("uri", v.URI), logger.ErrorField(err))
	}
	return s.voiceRepo.CreateVoice(v)
}

func (s *conversionSaver) SaveTrack(ctx context.Context, t *model.Track) error {
	if _, err := storage.UploadAudioFile(ctx, "tracks", t.URI); err != nil {
		logger.Warn("track mirror upload failed", logger.String("uri", t.URI), logger.ErrorField(err))
	}
	return s.trackRepo.CreateTrack(t)
}
