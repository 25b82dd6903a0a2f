package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cliparena/contexts/tournament/voting-engine/ports"

	"gorm.io/gorm"
)

const (
	flagMultiVote    = "multi_vote"
	flagAuthRequired = "auth_required"
	flagAsyncVotes   = "async_votes"
)

type cachedFlag struct {
	enabled   bool
	fetchedAt time.Time
}

// FlagProvider reads feature flags from the feature_flags table behind a
// short-lived cache, so every process instance converges on the same view
// within one TTL instead of each holding its own memoized module state.
type FlagProvider struct {
	db     *gorm.DB
	clock  ports.Clock
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedFlag
}

func NewFlagProvider(db *gorm.DB, clock ports.Clock, ttl time.Duration, logger *slog.Logger) *FlagProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &FlagProvider{
		db:     db,
		clock:  clock,
		ttl:    ttl,
		logger: logger,
		cache:  make(map[string]cachedFlag),
	}
}

func (p *FlagProvider) MultiVote(ctx context.Context) (bool, error) {
	return p.lookup(ctx, flagMultiVote)
}

func (p *FlagProvider) AuthRequired(ctx context.Context) (bool, error) {
	return p.lookup(ctx, flagAuthRequired)
}

func (p *FlagProvider) AsyncVotes(ctx context.Context) (bool, error) {
	return p.lookup(ctx, flagAsyncVotes)
}

func (p *FlagProvider) lookup(ctx context.Context, name string) (bool, error) {
	now := p.clock.Now()
	p.mu.Lock()
	if cached, ok := p.cache[name]; ok && now.Sub(cached.fetchedAt) < p.ttl {
		p.mu.Unlock()
		return cached.enabled, nil
	}
	p.mu.Unlock()

	var row featureFlagModel
	err := p.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || isUndefinedObject(err) {
			// Absent flag means disabled; cache the miss too.
			p.store(name, false, now)
			return false, nil
		}
		p.logger.Error("feature flag read failed",
			"event", "voting_flag_read_failed",
			"module", "tournament/voting-engine",
			"layer", "adapter",
			"flag", name,
			"error", err.Error(),
		)
		return false, err
	}
	p.store(name, row.Enabled, now)
	return row.Enabled, nil
}

func (p *FlagProvider) store(name string, enabled bool, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[name] = cachedFlag{enabled: enabled, fetchedAt: at}
}

var _ ports.FlagProvider = (*FlagProvider)(nil)
