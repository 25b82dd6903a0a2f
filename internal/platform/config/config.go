package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string
	CronSecret  string

	DailyVoteLimit int
	StandardWeight float64
	SuperWeight    float64
	MegaWeight     float64
	StatePageSize  int

	VotingDuration time.Duration
	FreezeBuffer   time.Duration
	CronLockTTL    time.Duration

	QueueBatchSize   int
	QueueMaxAttempts int
	QueueOrphanGrace time.Duration
	WorkerInterval   time.Duration
	ProgressInterval time.Duration

	FlagCacheTTL time.Duration
}

func Load() (Config, error) {
	// Missing .env is fine: container deployments inject real env vars.
	_ = godotenv.Load()

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "cliparena"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		CronSecret:  os.Getenv("CRON_SECRET"),

		DailyVoteLimit: envInt("DAILY_VOTE_LIMIT", 200),
		StandardWeight: envFloat("STANDARD_VOTE_WEIGHT", 1),
		SuperWeight:    envFloat("SUPER_VOTE_WEIGHT", 5),
		MegaWeight:     envFloat("MEGA_VOTE_WEIGHT", 10),
		StatePageSize:  envInt("STATE_PAGE_SIZE", 50),

		VotingDuration: envDuration("VOTING_DURATION", 24*time.Hour),
		FreezeBuffer:   envDuration("FREEZE_BUFFER", 120*time.Second),
		CronLockTTL:    envDuration("CRON_LOCK_TTL", 5*time.Minute),

		QueueBatchSize:   envInt("QUEUE_BATCH_SIZE", 100),
		QueueMaxAttempts: envInt("QUEUE_MAX_ATTEMPTS", 5),
		QueueOrphanGrace: envDuration("QUEUE_ORPHAN_GRACE", 5*time.Minute),
		WorkerInterval:   envDuration("WORKER_INTERVAL", 5*time.Second),
		ProgressInterval: envDuration("PROGRESS_INTERVAL", time.Minute),

		FlagCacheTTL: envDuration("FLAG_CACHE_TTL", 15*time.Second),
	}, nil
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
