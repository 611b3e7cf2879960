package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries the runtime settings for the API server. Every field
// comes from the environment; a .env file in the working directory is
// loaded first when present.
type Config struct {
	Port          string
	AllowedOrigin string

	// DatabaseURL selects the Postgres-backed store. When empty the
	// server runs on the seeded in-memory store.
	DatabaseURL string

	// RedisAddr selects the Redis stats cache. When empty stats are
	// recomputed on every request.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StatsTTLSeconds int

	AuthSecret            string
	AccessTokenTTLMinutes int
}

func Load() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "*"),
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		StatsTTLSeconds:       20,
		AccessTokenTTLMinutes: 480,
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.StatsTTLSeconds, err = getEnvInt("STATS_TTL_SECONDS", cfg.StatsTTLSeconds); err != nil {
		return Config{}, err
	}
	if cfg.StatsTTLSeconds < 1 {
		return Config{}, fmt.Errorf("STATS_TTL_SECONDS must be positive")
	}
	if cfg.AccessTokenTTLMinutes, err = getEnvInt("ACCESS_TOKEN_TTL_MINUTES", cfg.AccessTokenTTLMinutes); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must be positive")
	}

	if cfg.AuthSecret != "" && len(cfg.AuthSecret) < 16 {
		return Config{}, fmt.Errorf("AUTH_SECRET must be at least 16 characters")
	}

	return cfg, nil
}

func (c Config) Address() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, nil
}
