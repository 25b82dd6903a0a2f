package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"cliparena/contexts/tournament/voting-engine/domain/entities"
	domainerrors "cliparena/contexts/tournament/voting-engine/domain/errors"
	"cliparena/contexts/tournament/voting-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the atomic ledger strategy: vote mutations run inside a
// transaction holding a row-level lock on the clip, with a unique index on
// (voter_key, clip_id) as the backstop against concurrent identical inserts.
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

func (r *Repository) InsertVote(ctx context.Context, vote entities.Vote) (ports.InsertVoteResult, error) {
	var result ports.InsertVoteResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var clip clipModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", strings.TrimSpace(vote.ClipID)).
			First(&clip).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrClipNotFound
			}
			return err
		}

		row := voteModelFromEntity(vote)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrAlreadyVoted
			}
			return err
		}

		return applyClipDelta(tx, vote.ClipID, 1, vote.EffectiveWeight(), &result)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyVoted) || errors.Is(err, domainerrors.ErrClipNotFound) {
			return ports.InsertVoteResult{}, err
		}
		return ports.InsertVoteResult{}, r.logError("voting_repo_insert_vote_failed", err,
			"clip_id", strings.TrimSpace(vote.ClipID),
			"voter_key", strings.TrimSpace(vote.VoterKey),
		)
	}
	result.VoteID = vote.VoteID
	result.WasNewVote = true
	return result, nil
}

func (r *Repository) AccumulateVote(
	ctx context.Context,
	voterKey string,
	clipID string,
	voteType entities.VoteType,
	weight float64,
) (ports.InsertVoteResult, error) {
	var result ports.InsertVoteResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row voteModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("voter_key = ?", strings.TrimSpace(voterKey)).
			Where("clip_id = ?", strings.TrimSpace(clipID)).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrNotVoted
			}
			return err
		}
		if err := tx.Model(&voteModel{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"weight":    gorm.Expr("weight + ?", weight),
				"vote_type": string(voteType),
			}).Error; err != nil {
			return err
		}
		result.VoteID = row.ID
		return applyClipDelta(tx, clipID, 1, weight, &result)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotVoted) {
			return ports.InsertVoteResult{}, err
		}
		return ports.InsertVoteResult{}, r.logError("voting_repo_accumulate_vote_failed", err,
			"clip_id", strings.TrimSpace(clipID),
			"voter_key", strings.TrimSpace(voterKey),
		)
	}
	return result, nil
}

func (r *Repository) DeleteVote(ctx context.Context, voterKey string, clipID string) (entities.Vote, error) {
	var deleted entities.Vote
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row voteModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("voter_key = ?", strings.TrimSpace(voterKey)).
			Where("clip_id = ?", strings.TrimSpace(clipID)).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrNotVoted
			}
			return err
		}
		if err := tx.Where("id = ?", row.ID).Delete(&voteModel{}).Error; err != nil {
			return err
		}
		deleted = row.toEntity()
		return applyClipDelta(tx, clipID, -1, -deleted.EffectiveWeight(), nil)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotVoted) {
			return entities.Vote{}, err
		}
		return entities.Vote{}, r.logError("voting_repo_delete_vote_failed", err,
			"clip_id", strings.TrimSpace(clipID),
			"voter_key", strings.TrimSpace(voterKey),
		)
	}
	return deleted, nil
}

// ApplyQueuedVote replays a queue event. A dedup row keyed by event ID is
// inserted in the same transaction as the mutation, so redelivery of an
// already-applied event is a no-op. Derived clip counters are not touched
// here; a fast-path vote's delta sits in vote_counter_deltas and reaches the
// clip through ForceSync, while sync votes settle in InsertVote/DeleteVote.
func (r *Repository) ApplyQueuedVote(ctx context.Context, event entities.QueueEvent) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dedup := eventDedupModel{
			EventID:     strings.TrimSpace(event.EventID),
			ProcessedAt: time.Now().UTC(),
		}
		claim := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&dedup)
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return nil
		}
		applied = true

		switch event.Direction {
		case entities.DirectionRevoke:
			return tx.Where("id = ?", event.VoteID).Delete(&voteModel{}).Error
		default:
			if event.Metadata["accumulate"] == "true" {
				return tx.Model(&voteModel{}).
					Where("voter_key = ?", event.VoterKey).
					Where("clip_id = ?", event.ClipID).
					Update("weight", gorm.Expr("weight + ?", event.Weight)).Error
			}
			row := voteModelFromEntity(entities.Vote{
				VoteID:       event.VoteID,
				ClipID:       event.ClipID,
				VoterKey:     event.VoterKey,
				UserID:       event.UserID,
				VoteType:     event.VoteType,
				Weight:       event.Weight,
				SlotPosition: event.SlotPosition,
				CreatedAt:    event.OccurredAt,
			})
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
		}
	})
	if err != nil {
		return false, r.logError("voting_repo_apply_event_failed", err,
			"event_id", strings.TrimSpace(event.EventID),
			"vote_id", strings.TrimSpace(event.VoteID),
		)
	}
	return applied, nil
}

// ApplyCounterDelta merges a drained fast-path delta into the durable columns
// with a relative update, so concurrent ledger writes are never overwritten.
func (r *Repository) ApplyCounterDelta(ctx context.Context, clipID string, votes int, weighted float64) error {
	err := r.db.WithContext(ctx).Model(&clipModel{}).
		Where("id = ?", strings.TrimSpace(clipID)).
		Updates(map[string]any{
			"vote_count":     gorm.Expr("vote_count + ?", votes),
			"weighted_score": gorm.Expr("weighted_score + ?", weighted),
		}).Error
	if err != nil {
		return r.logError("voting_repo_apply_delta_failed", err, "clip_id", strings.TrimSpace(clipID))
	}
	return nil
}

func (r *Repository) GetVoteByIdentity(ctx context.Context, voterKey string, clipID string) (entities.Vote, bool, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("voter_key = ?", strings.TrimSpace(voterKey)).
		Where("clip_id = ?", strings.TrimSpace(clipID)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, false, nil
		}
		return entities.Vote{}, false, r.logError("voting_repo_get_vote_by_identity_failed", err,
			"voter_key", strings.TrimSpace(voterKey),
			"clip_id", strings.TrimSpace(clipID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) CountVotesSince(ctx context.Context, voterKey string, since time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&voteModel{}).
		Where("voter_key = ?", strings.TrimSpace(voterKey)).
		Where("created_at > ?", since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, r.logError("voting_repo_count_votes_failed", err, "voter_key", strings.TrimSpace(voterKey))
	}
	return int(count), nil
}

func (r *Repository) CountTypeForSlot(
	ctx context.Context,
	voterKey string,
	slotPosition int,
	voteType entities.VoteType,
) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&voteModel{}).
		Where("voter_key = ?", strings.TrimSpace(voterKey)).
		Where("slot_position = ?", slotPosition).
		Where("vote_type = ?", string(voteType)).
		Count(&count).Error
	if err != nil {
		return 0, r.logError("voting_repo_count_type_failed", err,
			"voter_key", strings.TrimSpace(voterKey),
			"slot_position", slotPosition,
		)
	}
	return int(count), nil
}

func (r *Repository) ListVoterClipIDs(ctx context.Context, voterKey string, slotPosition int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&voteModel{}).
		Where("voter_key = ?", strings.TrimSpace(voterKey)).
		Where("slot_position = ?", slotPosition).
		Order("created_at ASC").
		Pluck("clip_id", &ids).Error
	if err != nil {
		return nil, r.logError("voting_repo_list_voter_clips_failed", err, "voter_key", strings.TrimSpace(voterKey))
	}
	return ids, nil
}

// --- ports.TournamentReader ---

func (r *Repository) GetClip(ctx context.Context, clipID string) (ports.ClipProjection, error) {
	var row clipModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(clipID)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ClipProjection{}, domainerrors.ErrClipNotFound
		}
		return ports.ClipProjection{}, r.logError("voting_repo_get_clip_failed", err, "clip_id", strings.TrimSpace(clipID))
	}
	return row.toProjection(), nil
}

func (r *Repository) GetActiveSeason(ctx context.Context) (ports.SeasonProjection, bool, error) {
	var row seasonModel
	err := r.db.WithContext(ctx).
		Where("status = ?", "active").
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.SeasonProjection{}, false, nil
		}
		return ports.SeasonProjection{}, false, r.logError("voting_repo_get_active_season_failed", err)
	}
	return ports.SeasonProjection{SeasonID: row.ID, Status: row.Status, TotalSlots: row.TotalSlots}, true, nil
}

func (r *Repository) GetCurrentSlot(ctx context.Context, seasonID string) (ports.SlotProjection, bool, error) {
	var row slotModel
	err := r.db.WithContext(ctx).
		Where("season_id = ?", strings.TrimSpace(seasonID)).
		Where("status IN ?", []string{"voting", "waiting_for_clips"}).
		Order("CASE WHEN status = 'voting' THEN 0 ELSE 1 END, slot_position ASC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.SlotProjection{}, false, nil
		}
		return ports.SlotProjection{}, false, r.logError("voting_repo_get_current_slot_failed", err,
			"season_id", strings.TrimSpace(seasonID),
		)
	}
	return row.toProjection(), true, nil
}

func (r *Repository) ListClipsBySlot(ctx context.Context, seasonID string, slotPosition int) ([]ports.ClipProjection, error) {
	var rows []clipModel
	err := r.db.WithContext(ctx).
		Where("season_id = ?", strings.TrimSpace(seasonID)).
		Where("slot_position = ?", slotPosition).
		Order("weighted_score DESC, vote_count DESC").
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("voting_repo_list_clips_failed", err,
			"season_id", strings.TrimSpace(seasonID),
			"slot_position", slotPosition,
		)
	}
	clips := make([]ports.ClipProjection, 0, len(rows))
	for _, row := range rows {
		clips = append(clips, row.toProjection())
	}
	return clips, nil
}

func applyClipDelta(tx *gorm.DB, clipID string, votes int, weighted float64, out *ports.InsertVoteResult) error {
	if err := tx.Model(&clipModel{}).
		Where("id = ?", strings.TrimSpace(clipID)).
		Updates(map[string]any{
			"vote_count":     gorm.Expr("vote_count + ?", votes),
			"weighted_score": gorm.Expr("weighted_score + ?", weighted),
		}).Error; err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	var updated clipModel
	if err := tx.Where("id = ?", strings.TrimSpace(clipID)).First(&updated).Error; err != nil {
		return err
	}
	out.NewVoteCount = updated.VoteCount
	out.NewWeightedScore = updated.WeightedScore
	return nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{
		"event", event,
		"module", "tournament/voting-engine",
		"layer", "adapter",
		"error", err.Error(),
	}, args...)
	r.logger.Error("voting repository operation failed", fields...)
	return err
}

// SystemClock satisfies ports.Clock with wall time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator satisfies ports.IDGenerator with random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(context.Context) (string, error) { return uuid.NewString(), nil }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isUndefinedObject(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "42P01" || pgErr.Code == "42704")
}

var _ ports.VoteLedger = (*Repository)(nil)
var _ ports.TournamentReader = (*Repository)(nil)
