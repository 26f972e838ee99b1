package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment. It is
// loaded once at process start and treated as immutable afterwards.
type Config struct {
	Addr string

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	DefaultRole string

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// Load reads configuration from the environment, consulting a local .env
// file first when present.
func Load() (Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		Addr:               getEnv("IDHUB_ADDR", ":8080"),
		PostgresDSN:        os.Getenv("IDHUB_PG_DSN"),
		RedisAddr:          getEnv("IDHUB_REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("IDHUB_REDIS_PASSWORD"),
		JWTSecret:          os.Getenv("IDHUB_JWT_SECRET"),
		Issuer:             getEnv("IDHUB_ISSUER", "idhub"),
		DefaultRole:        getEnv("IDHUB_DEFAULT_ROLE", "USER"),
		AccessTTL:          30 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		RateLimitPerSecond: 20,
		RateLimitBurst:     40,
		MaxBodyBytes:       1 << 20,
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("IDHUB_REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.AccessTTL, err = getEnvDuration("IDHUB_ACCESS_TTL", cfg.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = getEnvDuration("IDHUB_REFRESH_TTL", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerSecond, err = getEnvInt("IDHUB_RATE_LIMIT_PER_SECOND", cfg.RateLimitPerSecond); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = getEnvInt("IDHUB_RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return Config{}, errors.New("IDHUB_JWT_SECRET is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return Config{}, errors.New("token TTLs must be greater than zero")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return Config{}, errors.New("refresh TTL must exceed access TTL")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
