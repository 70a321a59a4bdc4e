// Package config loads slidecast settings from the environment.
package config

import (
	"fmt"
	"os"
	"time"
)

const (
	DefaultRenderTimeout        = 900 * time.Second
	DefaultFetchTimeout         = 300 * time.Second
	DefaultMaxConcurrentRenders = 2
	DefaultEventsChannel        = "slidecast:renders"
)

// Config is the process configuration shared by cmd/api and cmd/slidectl.
type Config struct {
	HTTPPort string

	FFmpegBin string
	WorkRoot  string

	RenderTimeout        time.Duration
	FetchTimeout         time.Duration
	MaxConcurrentRenders int

	// DatabaseURL enables asset:// locators through the asset catalog.
	DatabaseURL string

	// RedisAddr enables render events on EventsChannel.
	RedisAddr     string
	EventsChannel string

	Storage          Storage
	PublishToStorage bool

	CORSAllowedOrigins string
}

// Storage selects and configures a storage provider. An empty Provider means
// no provider is wired.
type Storage struct {
	Provider  string
	LocalRoot string

	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string
}

// Load reads the configuration from environment variables.
func Load() Config {
	return Config{
		HTTPPort: Env("HTTP_PORT", "8080"),

		FFmpegBin: Env("FFMPEG_BIN", "ffmpeg"),
		WorkRoot:  Env("WORK_ROOT", os.TempDir()),

		RenderTimeout:        DurationEnv("RENDER_TIMEOUT", DefaultRenderTimeout),
		FetchTimeout:         DurationEnv("FETCH_TIMEOUT", DefaultFetchTimeout),
		MaxConcurrentRenders: IntEnv("MAX_CONCURRENT_RENDERS", DefaultMaxConcurrentRenders),

		DatabaseURL: Env("DATABASE_URL", ""),

		RedisAddr:     Env("REDIS_ADDR", ""),
		EventsChannel: Env("RENDER_EVENTS_CHANNEL", DefaultEventsChannel),

		Storage: Storage{
			Provider:           Env("STORAGE_PROVIDER", ""),
			LocalRoot:          Env("STORAGE_LOCAL_ROOT", ""),
			GDriveClientID:     Env("GDRIVE_CLIENT_ID", ""),
			GDriveClientSecret: Env("GDRIVE_CLIENT_SECRET", ""),
			GDriveRefreshToken: Env("GDRIVE_REFRESH_TOKEN", ""),
			GDriveFolderID:     Env("GDRIVE_FOLDER_ID", ""),
		},
		PublishToStorage: BoolEnv("PUBLISH_TO_STORAGE", false),

		CORSAllowedOrigins: Env("CORS_ALLOWED_ORIGINS", "*"),
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	if c.PublishToStorage && c.Storage.Provider == "" {
		return fmt.Errorf("PUBLISH_TO_STORAGE requires STORAGE_PROVIDER")
	}
	switch c.Storage.Provider {
	case "":
	case "localfs":
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("STORAGE_PROVIDER=localfs requires STORAGE_LOCAL_ROOT")
		}
	case "gdrive":
		if c.Storage.GDriveClientID == "" || c.Storage.GDriveClientSecret == "" || c.Storage.GDriveRefreshToken == "" {
			return fmt.Errorf("STORAGE_PROVIDER=gdrive requires GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN")
		}
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	return nil
}
