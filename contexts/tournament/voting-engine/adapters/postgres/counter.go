package postgresadapter

import (
	"context"
	"log/slog"
	"strings"

	"cliparena/contexts/tournament/voting-engine/domain/entities"
	"cliparena/contexts/tournament/voting-engine/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterStore is the fast-path vote counter backed by the
// vote_counter_deltas table. Every process writes and reads the same rows,
// so deltas absorbed by the api are visible to the worker's reconciler and a
// frozen slot is frozen everywhere.
type CounterStore struct {
	db     *gorm.DB
	clock  ports.Clock
	logger *slog.Logger
}

func NewCounterStore(db *gorm.DB, clock ports.Clock, logger *slog.Logger) *CounterStore {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &CounterStore{db: db, clock: clock, logger: logger}
}

func (s *CounterStore) Increment(ctx context.Context, clipID string, voteID string, weight float64) error {
	return s.recordDelta(ctx, clipID, voteID, entities.DirectionCast, 1, weight)
}

func (s *CounterStore) Decrement(ctx context.Context, clipID string, voteID string, weight float64) error {
	return s.recordDelta(ctx, clipID, voteID, entities.DirectionRevoke, -1, -weight)
}

// recordDelta inserts one mutation row. A cast and a revoke for the same
// vote are separate rows that sum to zero, so arrival order never matters;
// the (vote_id, direction) key makes redelivery a no-op.
func (s *CounterStore) recordDelta(
	ctx context.Context,
	clipID string,
	voteID string,
	direction entities.EventDirection,
	votes int,
	weighted float64,
) error {
	row := counterDeltaModel{
		VoteID:    strings.TrimSpace(voteID),
		Direction: string(direction),
		ClipID:    strings.TrimSpace(clipID),
		Votes:     votes,
		Weighted:  weighted,
		CreatedAt: s.clock.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return s.logError("voting_counter_delta_failed", err, "vote_id", row.VoteID, "direction", row.Direction)
	}
	return nil
}

func (s *CounterStore) CountAndScore(ctx context.Context, clipID string) (int, float64, bool, error) {
	var agg struct {
		Entries  int64
		Votes    int64
		Weighted float64
	}
	err := s.db.WithContext(ctx).Model(&counterDeltaModel{}).
		Select("COUNT(*) AS entries, COALESCE(SUM(votes), 0) AS votes, COALESCE(SUM(weighted), 0) AS weighted").
		Where("clip_id = ?", strings.TrimSpace(clipID)).
		Where("applied = ?", false).
		Scan(&agg).Error
	if err != nil {
		return 0, 0, false, s.logError("voting_counter_read_failed", err, "clip_id", clipID)
	}
	return int(agg.Votes), agg.Weighted, agg.Entries > 0, nil
}

// ForceSync merges each clip's unapplied delta rows into the durable clip
// counters and marks them applied in the same transaction. The rows are
// locked while summed; deltas written during the apply stay unapplied and
// survive to the next pass.
func (s *CounterStore) ForceSync(ctx context.Context, clipIDs []string) error {
	for _, clipID := range clipIDs {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var rows []counterDeltaModel
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("clip_id = ?", clipID).
				Where("applied = ?", false).
				Find(&rows).Error; err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			votes := 0
			weighted := 0.0
			for _, row := range rows {
				votes += row.Votes
				weighted += row.Weighted
			}
			if votes != 0 || weighted != 0 {
				if err := tx.Model(&clipModel{}).
					Where("id = ?", clipID).
					Updates(map[string]any{
						"vote_count":     gorm.Expr("vote_count + ?", votes),
						"weighted_score": gorm.Expr("weighted_score + ?", weighted),
					}).Error; err != nil {
					return err
				}
			}
			for _, row := range rows {
				if err := tx.Model(&counterDeltaModel{}).
					Where("vote_id = ? AND direction = ?", row.VoteID, row.Direction).
					Update("applied", true).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return s.logError("voting_counter_sync_failed", err, "clip_id", clipID)
		}
	}
	return nil
}

// ClearClips drops all delta rows for clips leaving the voting slot. Only
// called after the slot froze and a final ForceSync drained the deltas.
func (s *CounterStore) ClearClips(ctx context.Context, clipIDs []string) error {
	if len(clipIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("clip_id IN ?", clipIDs).
		Delete(&counterDeltaModel{}).Error
	if err != nil {
		return s.logError("voting_counter_clear_failed", err, "clip_count", len(clipIDs))
	}
	return nil
}

func (s *CounterStore) FreezeSlot(ctx context.Context, slotPosition int) error {
	row := slotFreezeModel{SlotPosition: slotPosition, FrozenAt: s.clock.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return s.logError("voting_counter_freeze_failed", err, "slot_position", slotPosition)
	}
	return nil
}

func (s *CounterStore) SlotFrozen(ctx context.Context, slotPosition int) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&slotFreezeModel{}).
		Where("slot_position = ?", slotPosition).
		Count(&count).Error
	if err != nil {
		return false, s.logError("voting_counter_frozen_check_failed", err, "slot_position", slotPosition)
	}
	return count > 0, nil
}

// UnfreezeSlot reopens a slot's fast path after a transition settles.
func (s *CounterStore) UnfreezeSlot(ctx context.Context, slotPosition int) error {
	err := s.db.WithContext(ctx).
		Where("slot_position = ?", slotPosition).
		Delete(&slotFreezeModel{}).Error
	if err != nil {
		return s.logError("voting_counter_unfreeze_failed", err, "slot_position", slotPosition)
	}
	return nil
}

func (s *CounterStore) logError(event string, err error, args ...any) error {
	fields := append([]any{
		"event", event,
		"module", "tournament/voting-engine",
		"layer", "adapter",
		"error", err.Error(),
	}, args...)
	s.logger.Error("vote counter operation failed", fields...)
	return err
}

var _ ports.CounterStore = (*CounterStore)(nil)
