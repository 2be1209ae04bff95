package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	RiotAPIKey string
	Region     string

	DBPath     string
	ServerPort string
	LogLevel   string

	// UpdateInterval is how often the scheduler kicks off a full MMR cycle.
	UpdateInterval time.Duration

	// MaxRetries bounds rate-limit retries per remote request. 0 retries forever.
	MaxRetries int

	TrackedGameMode string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		RiotAPIKey:      getEnv("RIOT_API_KEY", ""),
		Region:          getEnv("RIOT_REGION", "americas"),
		DBPath:          getEnv("DB_PATH", "arena_ranking.db"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		UpdateInterval:  getEnvDuration("UPDATE_INTERVAL", 10*time.Minute),
		MaxRetries:      getEnvInt("MAX_RETRIES", 5),
		TrackedGameMode: getEnv("TRACKED_GAME_MODE", "CHERRY"),
	}

	if cfg.RiotAPIKey == "" {
		return nil, fmt.Errorf("RIOT_API_KEY is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("MAX_RETRIES must be >= 0")
	}

	logger.Info().
		Str("region", cfg.Region).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Dur("update_interval", cfg.UpdateInterval).
		Int("max_retries", cfg.MaxRetries).
		Str("tracked_game_mode", cfg.TrackedGameMode).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
