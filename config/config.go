package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Most values have simple defaults suitable for local development.
type Config struct {
	FFmpegPath    string // Used for microphone capture and duration probing (ffprobe)
	CaptureFormat string // ffmpeg input format for the microphone, e.g. "pulse", "alsa", "avfoundation"
	CaptureDevice string // ffmpeg input device name, e.g. "default"

	DataDir     string // Base directory for captured/converted audio files
	VoiceDir    string // Subdirectory for saved voices: DataDir/voices
	TrackDir    string // Subdirectory for converted tracks: DataDir/tracks
	ImportDir   string // Drop directory watched for externally supplied audio files
	TmpDir      string // Scratch directory for in-flight captures

	MelodizrAPIURL string // Remote instrument/auto-tune conversion endpoint
	TriaAPIURL     string // Remote beatbox generation endpoint

	DefaultBPM  int // Session tempo when the client does not specify one
	DefaultBars int // Recording length in 4-beat bars

	JWTSecret string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	dataBase := getEnv("DATA_DIR", "data")

	return &Config{
		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		CaptureFormat: getEnv("CAPTURE_FORMAT", "pulse"),
		CaptureDevice: getEnv("CAPTURE_DEVICE", "default"),

		DataDir:   dataBase,
		VoiceDir:  filepath.Join(dataBase, "voices"),
		TrackDir:  filepath.Join(dataBase, "tracks"),
		ImportDir: getEnv("IMPORT_DIR", filepath.Join(dataBase, "import")),
		TmpDir:    filepath.Join(dataBase, "tmp"),

		MelodizrAPIURL: getEnv("MELODIZR_API_URL", "http://127.0.0.1:57476/melodizr_api"),
		TriaAPIURL:     getEnv("TRIA_API_URL", "http://127.0.0.1:53352"),

		DefaultBPM:  getEnvInt("DEFAULT_BPM", 120),
		DefaultBars: getEnvInt("DEFAULT_BARS", 4),

		JWTSecret: getEnv("JWT_SECRET", "melodizr-dev-secret"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "melodizr"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "melodizr"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}
