package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected load to pass, got %v", err)
	}
	if cfg.ServiceName != "cliparena" || cfg.HTTPPort != "8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.DailyVoteLimit != 200 || cfg.StandardWeight != 1 || cfg.SuperWeight != 5 || cfg.MegaWeight != 10 {
		t.Fatalf("unexpected vote defaults %+v", cfg)
	}
	if cfg.VotingDuration != 24*time.Hour || cfg.FreezeBuffer != 120*time.Second || cfg.CronLockTTL != 5*time.Minute {
		t.Fatalf("unexpected duration defaults %+v", cfg)
	}
	if cfg.QueueBatchSize != 100 || cfg.QueueMaxAttempts != 5 || cfg.QueueOrphanGrace != 5*time.Minute {
		t.Fatalf("unexpected queue defaults %+v", cfg)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVICE_NAME", "cliparena-staging")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DAILY_VOTE_LIMIT", "50")
	t.Setenv("SUPER_VOTE_WEIGHT", "7.5")
	t.Setenv("VOTING_DURATION", "2h")
	t.Setenv("WORKER_INTERVAL", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected load to pass, got %v", err)
	}
	if cfg.ServiceName != "cliparena-staging" || cfg.HTTPPort != "9090" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.DailyVoteLimit != 50 || cfg.SuperWeight != 7.5 {
		t.Fatalf("unexpected numeric overrides %+v", cfg)
	}
	if cfg.VotingDuration != 2*time.Hour || cfg.WorkerInterval != 250*time.Millisecond {
		t.Fatalf("unexpected duration overrides %+v", cfg)
	}
}

func TestLoadRejectsGarbageValues(t *testing.T) {
	t.Setenv("DAILY_VOTE_LIMIT", "not-a-number")
	t.Setenv("STATE_PAGE_SIZE", "-3")
	t.Setenv("CRON_LOCK_TTL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected load to pass, got %v", err)
	}
	if cfg.DailyVoteLimit != 200 || cfg.StatePageSize != 50 || cfg.CronLockTTL != 5*time.Minute {
		t.Fatalf("expected fallbacks on bad input, got %+v", cfg)
	}
}
