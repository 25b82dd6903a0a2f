package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"cliparena/contexts/tournament/progression-service/domain/entities"
	domainerrors "cliparena/contexts/tournament/progression-service/domain/errors"
	"cliparena/contexts/tournament/progression-service/ports"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists the season/slot/clip lifecycle. Transitions are plain
// conditional updates: progression re-reads state every tick, so a write that
// races another tick just becomes a no-op on the retry.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) ActiveSeason(ctx context.Context) (entities.Season, bool, error) {
	var row seasonModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.SeasonStatusActive)).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Season{}, false, nil
		}
		return entities.Season{}, false, r.logError("progression_repo_active_season_failed", err)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ExpiredVotingSlots(ctx context.Context, seasonID string, now time.Time) ([]entities.Slot, error) {
	var rows []slotModel
	err := r.db.WithContext(ctx).
		Where("season_id = ?", seasonID).
		Where("status = ?", string(entities.SlotStatusVoting)).
		Where("voting_ends_at IS NOT NULL AND voting_ends_at <= ?", now.UTC()).
		Order("slot_position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("progression_repo_expired_slots_failed", err, "season_id", seasonID)
	}
	return slotsToEntities(rows), nil
}

func (r *Repository) SlotsEndingWithin(
	ctx context.Context,
	seasonID string,
	now time.Time,
	buffer time.Duration,
) ([]entities.Slot, error) {
	var rows []slotModel
	err := r.db.WithContext(ctx).
		Where("season_id = ?", seasonID).
		Where("status = ?", string(entities.SlotStatusVoting)).
		Where("voting_ends_at IS NOT NULL AND voting_ends_at > ? AND voting_ends_at <= ?",
			now.UTC(), now.UTC().Add(buffer)).
		Order("slot_position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("progression_repo_ending_slots_failed", err, "season_id", seasonID)
	}
	return slotsToEntities(rows), nil
}

func (r *Repository) SlotByPosition(ctx context.Context, seasonID string, position int) (entities.Slot, bool, error) {
	var row slotModel
	err := r.db.WithContext(ctx).
		Where("season_id = ?", seasonID).
		Where("slot_position = ?", position).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Slot{}, false, nil
		}
		return entities.Slot{}, false, r.logError("progression_repo_slot_by_position_failed", err,
			"season_id", seasonID, "slot_position", position)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ActiveClips(ctx context.Context, seasonID string, position int) ([]entities.Clip, error) {
	var rows []clipModel
	err := r.db.WithContext(ctx).
		Where("season_id = ?", seasonID).
		Where("slot_position = ?", position).
		Where("status = ?", string(entities.ClipStatusActive)).
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("progression_repo_active_clips_failed", err,
			"season_id", seasonID, "slot_position", position)
	}
	clips := make([]entities.Clip, 0, len(rows))
	for _, row := range rows {
		clips = append(clips, row.toEntity())
	}
	return clips, nil
}

func (r *Repository) LockSlot(ctx context.Context, slotID string, winnerClipID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&slotModel{}).
		Where("id = ?", slotID).
		Where("status = ?", string(entities.SlotStatusVoting)).
		Updates(map[string]any{
			"status":         string(entities.SlotStatusLocked),
			"winner_clip_id": winnerClipID,
			"updated_at":     at.UTC(),
		})
	if result.Error != nil {
		return r.logError("progression_repo_lock_slot_failed", result.Error, "slot_id", slotID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrSlotNotFound
	}
	return nil
}

func (r *Repository) MarkClipLocked(ctx context.Context, clipID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&clipModel{}).
		Where("id = ?", clipID).
		Where("status = ?", string(entities.ClipStatusActive)).
		Updates(map[string]any{
			"status":    string(entities.ClipStatusLocked),
			"locked_at": at.UTC(),
		}).Error
	if err != nil {
		return r.logError("progression_repo_mark_clip_locked_failed", err, "clip_id", clipID)
	}
	return nil
}

func (r *Repository) EliminateClips(ctx context.Context, clipIDs []string, reason string, at time.Time) error {
	if len(clipIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&clipModel{}).
		Where("id IN ?", clipIDs).
		Where("status = ?", string(entities.ClipStatusActive)).
		Updates(map[string]any{
			"status":            string(entities.ClipStatusEliminated),
			"eliminated_at":     at.UTC(),
			"eliminated_reason": reason,
		}).Error
	if err != nil {
		return r.logError("progression_repo_eliminate_clips_failed", err, "clip_count", len(clipIDs))
	}
	return nil
}

func (r *Repository) SetSlotWaiting(ctx context.Context, slotID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&slotModel{}).
		Where("id = ?", slotID).
		Updates(map[string]any{
			"status":            string(entities.SlotStatusWaitingForClips),
			"voting_started_at": nil,
			"voting_ends_at":    nil,
			"updated_at":        at.UTC(),
		}).Error
	if err != nil {
		return r.logError("progression_repo_set_slot_waiting_failed", err, "slot_id", slotID)
	}
	return nil
}

func (r *Repository) ActivateSlot(ctx context.Context, slotID string, startsAt time.Time, endsAt time.Time) error {
	err := r.db.WithContext(ctx).Model(&slotModel{}).
		Where("id = ?", slotID).
		Where("status IN ?", []string{
			string(entities.SlotStatusUpcoming),
			string(entities.SlotStatusWaitingForClips),
		}).
		Updates(map[string]any{
			"status":            string(entities.SlotStatusVoting),
			"voting_started_at": startsAt.UTC(),
			"voting_ends_at":    endsAt.UTC(),
			"updated_at":        startsAt.UTC(),
		}).Error
	if err != nil {
		return r.logError("progression_repo_activate_slot_failed", err, "slot_id", slotID)
	}
	return nil
}

func (r *Repository) FinishSeason(ctx context.Context, seasonID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&seasonModel{}).
		Where("id = ?", seasonID).
		Where("status = ?", string(entities.SeasonStatusActive)).
		Updates(map[string]any{
			"status":     string(entities.SeasonStatusFinished),
			"updated_at": at.UTC(),
		}).Error
	if err != nil {
		return r.logError("progression_repo_finish_season_failed", err, "season_id", seasonID)
	}
	return nil
}

func (r *Repository) EliminateRemainingClips(
	ctx context.Context,
	seasonID string,
	reason string,
	at time.Time,
) (int, error) {
	result := r.db.WithContext(ctx).Model(&clipModel{}).
		Where("season_id = ?", seasonID).
		Where("status = ?", string(entities.ClipStatusActive)).
		Updates(map[string]any{
			"status":            string(entities.ClipStatusEliminated),
			"eliminated_at":     at.UTC(),
			"eliminated_reason": reason,
		})
	if result.Error != nil {
		return 0, r.logError("progression_repo_eliminate_remaining_failed", result.Error, "season_id", seasonID)
	}
	return int(result.RowsAffected), nil
}

// logError records the underlying failure and surfaces the store sentinel;
// callers only ever branch on domain errors, never driver ones.
func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{
		"event", event,
		"module", "progression_service",
		"layer", "adapter_postgres",
		"error", err.Error(),
	}, args...)
	r.logger.Error("progression repository operation failed", fields...)
	return domainerrors.ErrStoreUnavailable
}

func slotsToEntities(rows []slotModel) []entities.Slot {
	slots := make([]entities.Slot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, row.toEntity())
	}
	return slots
}

// CronLock is a lease on a row in cron_locks keyed by job name. Contenders
// race on an upsert guarded by the expiry check, so a crashed holder is
// superseded as soon as its lease runs out.
type CronLock struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewCronLock(db *gorm.DB, logger *slog.Logger) *CronLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronLock{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (l *CronLock) Acquire(ctx context.Context, jobName string, ttl time.Duration) (string, bool, error) {
	jobName = strings.TrimSpace(jobName)
	if jobName == "" {
		return "", false, domainerrors.ErrLockUnavailable
	}
	now := l.now()
	lockID := uuid.NewString()

	row := cronLockModel{
		JobName:    jobName,
		LockID:     lockID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	result := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_name"}},
		Where:   clause.Where{Exprs: []clause.Expression{gorm.Expr("cron_locks.expires_at <= ?", now)}},
		DoUpdates: clause.Assignments(map[string]any{
			"lock_id":     lockID,
			"acquired_at": now,
			"expires_at":  now.Add(ttl),
		}),
	}).Create(&row)
	if result.Error != nil {
		l.logger.Error("cron lock acquire failed",
			"event", "cron_lock_acquire_failed",
			"module", "progression_service",
			"layer", "adapter_postgres",
			"job_name", jobName,
			"error", result.Error.Error(),
		)
		return "", false, result.Error
	}
	if result.RowsAffected == 0 {
		return "", false, nil
	}
	return lockID, true, nil
}

func (l *CronLock) Release(ctx context.Context, jobName string, lockID string) error {
	// Only the current holder may release; a superseded lease is left alone.
	err := l.db.WithContext(ctx).
		Where("job_name = ?", strings.TrimSpace(jobName)).
		Where("lock_id = ?", lockID).
		Delete(&cronLockModel{}).Error
	if err != nil {
		l.logger.Warn("cron lock release failed",
			"event", "cron_lock_release_failed",
			"module", "progression_service",
			"layer", "adapter_postgres",
			"job_name", jobName,
			"error", err.Error(),
		)
		return err
	}
	return nil
}

var (
	_ ports.TournamentRepository = (*Repository)(nil)
	_ ports.CronLock             = (*CronLock)(nil)
)
