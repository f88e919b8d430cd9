// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting shared by the Lambdas and the local server.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	JWTSecret       string        `env:"JWT_SECRET,required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	TokenBlacklistTable string `env:"TOKEN_BLACKLIST_TABLE_NAME" envDefault:"mindmend-token-blacklist"`
	IdempotencyTable    string `env:"IDEMPOTENCY_TABLE_NAME" envDefault:"mindmend-idempotency"`

	// KMSKeyID enables encryption of contact messages at rest when set.
	KMSKeyID string `env:"KMS_KEY_ID"`

	MediaBucket  string `env:"MEDIA_BUCKET" envDefault:"mindmend-media"`
	MediaBaseURL string `env:"MEDIA_BASE_URL"`

	MailFrom     string `env:"EMAIL_HOST_USER" envDefault:"no-reply@mindmend.app"`
	ResetBaseURL string `env:"RESET_BASE_URL" envDefault:"https://emdradmin.pythonanywhere.com/mindmend"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	LocalAddr       string   `env:"LOCAL_ADDR" envDefault:":8080"`
	CORSOrigins     []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	LocalRatePerSec int      `env:"LOCAL_RATE_PER_SEC" envDefault:"20"`
	LocalRateBurst  int      `env:"LOCAL_RATE_BURST" envDefault:"40"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MediaBaseURL == "" {
		cfg.MediaBaseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.MediaBucket)
	}
	return cfg, nil
}

// LoadDotenv loads the first .env found in the working directory or its
// parents. Values already in the environment win. Missing files are fine.
func LoadDotenv() string {
	for _, p := range []string{".env", filepath.Join("..", ".env"), filepath.Join("..", "..", ".env")} {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err == nil {
				return p
			}
		}
	}
	return ""
}
