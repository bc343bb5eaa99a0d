package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"melodizr/config"
	"melodizr/core/auth"
	"melodizr/core/capture"
	"melodizr/core/control"
	"melodizr/core/convert"
	"melodizr/core/metronome"
	"melodizr/core/playback"
	"melodizr/core/probe"
	"melodizr/logger"
	"melodizr/repository"
)

type contextKey string

const (
	ctxKeyUserID   contextKey = "userID"
	ctxKeyUsername contextKey = "username"
)

// APIHandler handles all API requests.
type APIHandler struct {
	userRepo    repository.UserRepository
	projectRepo repository.ProjectRepository
	trackRepo   repository.TrackRepository
	voiceRepo   repository.VoiceRepository

	machine   *control.Machine
	engine    *playback.Engine
	gateway   *convert.Client
	prober    *probe.Prober
	metronome *metronome.Driver
	cfg       *config.Config

	recordHub *wsHub
	playerHub *wsHub
}

// NewAPIHandler creates the API handler over its collaborators.
func NewAPIHandler(
	userRepo repository.UserRepository,
	projectRepo repository.ProjectRepository,
	trackRepo repository.TrackRepository,
	voiceRepo repository.VoiceRepository,
	machine *control.Machine,
	engine *playback.Engine,
	gateway *convert.Client,
	prober *probe.Prober,
	cfg *config.Config,
) *APIHandler {
	h := &APIHandler{
		userRepo:    userRepo,
		projectRepo: projectRepo,
		trackRepo:   trackRepo,
		voiceRepo:   voiceRepo,
		machine:     machine,
		engine:      engine,
		gateway:     gateway,
		prober:      prober,
		cfg:         cfg,
		recordHub:   newWSHub(),
		playerHub:   newWSHub(),
	}
	h.metronome = metronome.NewDriver(func(b metronome.Beat) {
		h.recordHub.broadcast(beatEvent{Type: "beat", Cycle: b.Cycle, Strong: b.Strong})
	})
	return h
}

// AuthMiddleware checks for a valid JWT token.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxKeyUsername, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID set by AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(ctxKeyUserID).(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the engine error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var tooLong *control.FileTooLongError
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "microphone permission denied")
	case errors.Is(err, capture.ErrDeviceUnavailable):
		writeError(w, http.StatusConflict, "recording device unavailable")
	case errors.Is(err, capture.ErrNoActiveCapture):
		writeError(w, http.StatusConflict, "no active capture")
	case errors.As(err, &tooLong):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]interface{}{
			"error":          "audio file too long",
			"allowedSeconds": tooLong.AllowedSeconds(),
		})
	case errors.Is(err, control.ErrInvalidStep), errors.Is(err, control.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, convert.ErrConversionFailed):
		writeError(w, http.StatusBadGateway, "conversion service failed")
	default:
		logger.Error("request failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
