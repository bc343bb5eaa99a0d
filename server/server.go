package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"melodizr/config"
	"melodizr/core/capture"
	"melodizr/core/control"
	"melodizr/core/convert"
	"melodizr/core/playback"
	"melodizr/core/probe"
	"melodizr/db"
	"melodizr/model"
	"melodizr/repository"
	"melodizr/storage"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	server := &http.Server{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := storage.InitMinio(); err != nil {
		log.Fatalf("Failed to initialize MinIO: %v", err)
	}

	if err := db.ConnectDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database with GORM: %v", err)
	}
	defer db.CloseGormDB()

	if err := db.ConnectRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer db.CloseRedis()
	log.Println("Successfully connected to Redis")

	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.AutoMigrateModels(&model.Voice{}); err != nil {
		log.Fatalf("Failed to migrate voice model: %v", err)
	}

	ensureDirExists(cfg.DataDir)
	ensureDirExists(cfg.VoiceDir)
	ensureDirExists(cfg.TrackDir)
	ensureDirExists(cfg.ImportDir)
	ensureDirExists(cfg.TmpDir)

	userRepo := repository.NewMySQLUserRepository(db.DB)
	projectRepo := repository.NewMySQLProjectRepository(db.DB)
	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	voiceRepo := repository.NewGormVoiceRepository(db.GormDB)

	prober := probe.NewProber(cfg.FFmpegPath)
	device := capture.NewFFmpegDevice(cfg.FFmpegPath, cfg.CaptureFormat, cfg.CaptureDevice, cfg.TmpDir,
		func(path string) (int64, error) {
			return prober.DurationMillis(context.Background(), path)
		})
	gateway := convert.NewClient(cfg.MelodizrAPIURL, cfg.TrackDir)
	triaGateway := convert.NewClient(cfg.TriaAPIURL, cfg.TrackDir)
	saver := &conversionSaver{voiceRepo: voiceRepo, trackRepo: trackRepo}
	machine := control.NewMachine(device, gateway, prober, saver, cfg.DefaultBPM, cfg.DefaultBars)
	engine := playback.NewEngine(playback.NewFFplayLoader(cfg.FFmpegPath))

	apiHandler := NewAPIHandler(userRepo, projectRepo, trackRepo, voiceRepo,
		machine, engine, triaGateway, prober, cfg)
	machine.SetEvents(apiHandler.machineEvents())
	engine.SetPositionListener(apiHandler.positionListener())

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	if err := apiHandler.StartImportWatcher(rootCtx); err != nil {
		log.Fatalf("Failed to start import watcher: %v", err)
	}

	router := mux.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Auth
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)

	// Projects
	router.HandleFunc("/api/projects", apiHandler.AuthMiddleware(apiHandler.GetProjectsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects", apiHandler.AuthMiddleware(apiHandler.CreateProjectHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}", apiHandler.AuthMiddleware(apiHandler.GetProjectHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}", apiHandler.AuthMiddleware(apiHandler.UpdateProjectHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/title", apiHandler.AuthMiddleware(apiHandler.RenameProjectHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteProjectHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/projects/{id}/tracks", apiHandler.AuthMiddleware(apiHandler.AddTrackToProjectHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}/presets", apiHandler.AuthMiddleware(apiHandler.AddPresetTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}/tracks/{track_id}", apiHandler.AuthMiddleware(apiHandler.RemoveTrackFromProjectHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/projects/{id}/tracks/{track_id}/mute", apiHandler.AuthMiddleware(apiHandler.MuteTrackHandler)).Methods(http.MethodPut)

	// Track library
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteTrackHandler)).Methods(http.MethodDelete)

	// Voice library
	router.HandleFunc("/api/voices", apiHandler.AuthMiddleware(apiHandler.GetVoicesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/voices/{id}", apiHandler.AuthMiddleware(apiHandler.RenameVoiceHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/voices/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteVoiceHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/voices/{id}/use", apiHandler.AuthMiddleware(apiHandler.UseVoiceHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/voices/beatbox", apiHandler.AuthMiddleware(apiHandler.GenerateBeatboxHandler)).Methods(http.MethodPost)

	// Recording flow
	router.HandleFunc("/api/record/status", apiHandler.AuthMiddleware(apiHandler.RecordStatusHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/record/configure", apiHandler.AuthMiddleware(apiHandler.RecordConfigureHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/record/start", apiHandler.AuthMiddleware(apiHandler.RecordStartHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/record/stop", apiHandler.AuthMiddleware(apiHandler.RecordStopHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/record/upload", apiHandler.AuthMiddleware(apiHandler.RecordUploadHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/record/convert", apiHandler.AuthMiddleware(apiHandler.RecordConvertHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/record/retake", apiHandler.AuthMiddleware(apiHandler.RecordRetakeHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/record/close", apiHandler.AuthMiddleware(apiHandler.RecordCloseHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/record/metronome/start", apiHandler.AuthMiddleware(apiHandler.MetronomeStartHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/record/metronome/stop", apiHandler.AuthMiddleware(apiHandler.MetronomeStopHandler)).Methods(http.MethodPost)

	// Player
	router.HandleFunc("/api/player/load/{id}", apiHandler.AuthMiddleware(apiHandler.PlayerLoadHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/player/status", apiHandler.AuthMiddleware(apiHandler.PlayerStatusHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/player/play", apiHandler.AuthMiddleware(apiHandler.PlayerPlayHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/player/pause", apiHandler.AuthMiddleware(apiHandler.PlayerPauseHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/player/seek", apiHandler.AuthMiddleware(apiHandler.PlayerSeekHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/player/stop", apiHandler.AuthMiddleware(apiHandler.PlayerStopHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/player/unload", apiHandler.AuthMiddleware(apiHandler.PlayerUnloadHandler)).Methods(http.MethodPost)

	// Event streams
	router.HandleFunc("/ws/record", apiHandler.WebSocketRecordHandler)
	router.HandleFunc("/ws/player", apiHandler.WebSocketPlayerHandler)

	// Audio object proxy from MinIO
	router.PathPrefix("/audio/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		objectPath := strings.TrimPrefix(r.URL.Path, "/audio/")

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		object, err := storage.OpenAudioObject(ctx, objectPath)
		if err != nil {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		defer object.Close()

		contentType := "audio/wav"
		if strings.HasSuffix(objectPath, ".mp3") {
			contentType = "audio/mpeg"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000")

		if _, err := io.Copy(w, object); err != nil {
			log.Printf("Error serving file from MinIO: %v", err)
		}
	})

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Println("Server starting on :8080...")
		log.Println("Recording flow via /api/record endpoints, events on /ws/record")
		log.Println("Project playback via /api/player endpoints, position on /ws/player")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	machine.Close()
	engine.Unload()
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Creating directory: %s", path)
		if err := os.MkdirAll(path, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", path, err)
		}
	} else if err != nil {
		log.Fatalf("Failed to check directory %s: %v", path, err)
	}
}
