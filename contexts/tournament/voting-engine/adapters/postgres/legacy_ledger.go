package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"cliparena/contexts/tournament/voting-engine/domain/entities"
	domainerrors "cliparena/contexts/tournament/voting-engine/domain/errors"
	"cliparena/contexts/tournament/voting-engine/ports"

	"gorm.io/gorm"
)

// LegacyLedger is the fallback strategy for stores that lack row-level
// locking and the votes unique index. It performs a read-then-write sequence
// with a known race window between the duplicate check and the insert, and
// warns on every mutation so the degraded mode is visible in logs.
//
// It is selected once at startup by ProbeAtomicSupport, never per request.
type LegacyLedger struct {
	*Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewLegacyLedger(db *gorm.DB, logger *slog.Logger) *LegacyLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LegacyLedger{
		Repository: NewRepository(db, logger),
		db:         db,
		logger:     logger,
	}
}

func (l *LegacyLedger) InsertVote(ctx context.Context, vote entities.Vote) (ports.InsertVoteResult, error) {
	l.warn("insert", vote.ClipID)

	var existing voteModel
	err := l.db.WithContext(ctx).
		Where("voter_key = ?", strings.TrimSpace(vote.VoterKey)).
		Where("clip_id = ?", strings.TrimSpace(vote.ClipID)).
		First(&existing).Error
	if err == nil {
		return ports.InsertVoteResult{}, domainerrors.ErrAlreadyVoted
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.InsertVoteResult{}, err
	}

	row := voteModelFromEntity(vote)
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return ports.InsertVoteResult{}, err
	}

	result := ports.InsertVoteResult{VoteID: vote.VoteID, WasNewVote: true}
	if err := l.db.WithContext(ctx).Model(&clipModel{}).
		Where("id = ?", strings.TrimSpace(vote.ClipID)).
		Updates(map[string]any{
			"vote_count":     gorm.Expr("vote_count + 1"),
			"weighted_score": gorm.Expr("weighted_score + ?", vote.EffectiveWeight()),
		}).Error; err != nil {
		return ports.InsertVoteResult{}, err
	}
	var updated clipModel
	if err := l.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(vote.ClipID)).First(&updated).Error; err == nil {
		result.NewVoteCount = updated.VoteCount
		result.NewWeightedScore = updated.WeightedScore
	}
	return result, nil
}

func (l *LegacyLedger) DeleteVote(ctx context.Context, voterKey string, clipID string) (entities.Vote, error) {
	l.warn("delete", clipID)

	var row voteModel
	err := l.db.WithContext(ctx).
		Where("voter_key = ?", strings.TrimSpace(voterKey)).
		Where("clip_id = ?", strings.TrimSpace(clipID)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, domainerrors.ErrNotVoted
		}
		return entities.Vote{}, err
	}
	if err := l.db.WithContext(ctx).Where("id = ?", row.ID).Delete(&voteModel{}).Error; err != nil {
		return entities.Vote{}, err
	}
	deleted := row.toEntity()
	if err := l.db.WithContext(ctx).Model(&clipModel{}).
		Where("id = ?", strings.TrimSpace(clipID)).
		Updates(map[string]any{
			"vote_count":     gorm.Expr("vote_count - 1"),
			"weighted_score": gorm.Expr("weighted_score - ?", deleted.EffectiveWeight()),
		}).Error; err != nil {
		return entities.Vote{}, err
	}
	return deleted, nil
}

func (l *LegacyLedger) warn(op string, clipID string) {
	l.logger.Warn("legacy ledger path in use, duplicate race window accepted",
		"event", "voting_legacy_ledger_"+op,
		"module", "tournament/voting-engine",
		"layer", "adapter",
		"clip_id", strings.TrimSpace(clipID),
	)
}

// ProbeAtomicSupport checks once at startup whether the store supports the
// atomic primitive (FOR UPDATE row locks against the votes table). Callers
// pick the Repository strategy when it succeeds and LegacyLedger otherwise.
func ProbeAtomicSupport(ctx context.Context, db *gorm.DB) bool {
	err := db.WithContext(ctx).Exec("SELECT id FROM votes WHERE id = ? FOR UPDATE", "__probe__").Error
	if err == nil {
		return true
	}
	return !isUndefinedObject(err) && !isFeatureUnsupported(err)
}

func isFeatureUnsupported(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "for update")
}

var _ ports.VoteLedger = (*LegacyLedger)(nil)
