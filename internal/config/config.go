package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken   string   `env:"AUTH_TOKEN"`
	CORSOrigins []string `env:"CORS_ORIGINS"`
	RateLimit   float64  `env:"RATE_LIMIT"`
	RateBurst   int      `env:"RATE_BURST" envDefault:"50"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`

	SettingsPath string `env:"SETTINGS_PATH" envDefault:"./settings.json"`
	MediaDir     string `env:"MEDIA_DIR"`
	TempDir      string `env:"TEMP_DIR"`
	ModelPath    string `env:"MODEL_PATH"`

	ExtractTimeout    time.Duration `env:"EXTRACT_TIMEOUT" envDefault:"30s"`
	ExtractTimeoutMax time.Duration `env:"EXTRACT_TIMEOUT_MAX" envDefault:"2m"`
	StopWait          time.Duration `env:"STOP_WAIT" envDefault:"2s"`
	TempMaxAge        time.Duration `env:"TEMP_MAX_AGE" envDefault:"24h"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	EventBuffer int `env:"EVENT_BUFFER" envDefault:"256"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile      string
	HTTPAddr     string
	LogLevel     string
	SettingsPath string
	MediaDir     string
	ModelPath    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.SettingsPath != "" {
		cfg.SettingsPath = overrides.SettingsPath
	}
	if overrides.MediaDir != "" {
		cfg.MediaDir = overrides.MediaDir
	}
	if overrides.ModelPath != "" {
		cfg.ModelPath = overrides.ModelPath
	}

	return cfg, nil
}
