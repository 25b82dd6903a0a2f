package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"cliparena/contexts/tournament/voting-engine/domain/entities"
	"cliparena/contexts/tournament/voting-engine/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	queueStatusPending    = "pending"
	queueStatusProcessing = "processing"
)

// Queue is the durable vote event pipeline backed by a vote_queue table.
// Pop claims rows with FOR UPDATE SKIP LOCKED so concurrent consumers never
// receive the same event.
type Queue struct {
	db     *gorm.DB
	logger *slog.Logger
	clock  ports.Clock
}

func NewQueue(db *gorm.DB, clock ports.Clock, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Queue{db: db, logger: logger, clock: clock}
}

func (q *Queue) Push(ctx context.Context, event entities.QueueEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	row := queueEventModel{
		EventID:      strings.TrimSpace(event.EventID),
		VoteID:       strings.TrimSpace(event.VoteID),
		ClipID:       strings.TrimSpace(event.ClipID),
		VoterKey:     strings.TrimSpace(event.VoterKey),
		VoteType:     string(event.VoteType),
		SlotPosition: event.SlotPosition,
		Direction:    string(event.Direction),
		Payload:      payload,
		Status:       queueStatusPending,
		Attempts:     event.Attempts,
		OccurredAt:   event.OccurredAt.UTC(),
		CreatedAt:    q.clock.Now().UTC(),
	}
	// At-least-once: a retried push of the same event ID is harmless.
	err = q.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return q.logError("voting_queue_push_failed", err, "event_id", row.EventID)
	}
	return nil
}

func (q *Queue) Pop(ctx context.Context, n int) ([]entities.QueueEvent, error) {
	if n <= 0 {
		return nil, nil
	}
	var events []entities.QueueEvent
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []queueEventModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", queueStatusPending).
			Order("created_at ASC").
			Limit(n).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		now := q.clock.Now().UTC()
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.EventID)
		}
		if err := tx.Model(&queueEventModel{}).
			Where("event_id IN ?", ids).
			Updates(map[string]any{
				"status":     queueStatusProcessing,
				"claimed_at": now,
				"attempts":   gorm.Expr("attempts + 1"),
			}).Error; err != nil {
			return err
		}
		events = make([]entities.QueueEvent, 0, len(rows))
		for _, row := range rows {
			var event entities.QueueEvent
			if err := json.Unmarshal(row.Payload, &event); err != nil {
				return err
			}
			event.Attempts = row.Attempts + 1
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, q.logError("voting_queue_pop_failed", err)
	}
	return events, nil
}

func (q *Queue) Acknowledge(ctx context.Context, events ...entities.QueueEvent) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, 0, len(events))
	for _, event := range events {
		ids = append(ids, strings.TrimSpace(event.EventID))
	}
	err := q.db.WithContext(ctx).
		Where("event_id IN ?", ids).
		Where("status = ?", queueStatusProcessing).
		Delete(&queueEventModel{}).Error
	if err != nil {
		return q.logError("voting_queue_ack_failed", err)
	}
	return nil
}

func (q *Queue) MoveToDeadLetter(ctx context.Context, event entities.QueueEvent, cause string, attempts int) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	now := q.clock.Now().UTC()
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var claimed queueEventModel
		first := now
		if err := tx.Where("event_id = ?", event.EventID).First(&claimed).Error; err == nil && claimed.ClaimedAt != nil {
			first = claimed.ClaimedAt.UTC()
		}
		if err := tx.Where("event_id = ?", event.EventID).Delete(&queueEventModel{}).Error; err != nil {
			return err
		}
		entry := deadLetterModel{
			EventID:       strings.TrimSpace(event.EventID),
			Payload:       payload,
			Cause:         cause,
			Attempts:      attempts,
			FirstFailedAt: first,
			LastFailedAt:  now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		// Evict oldest entries beyond the cap.
		return tx.Exec(
			"DELETE FROM vote_queue_dead_letters WHERE seq NOT IN (SELECT seq FROM vote_queue_dead_letters ORDER BY seq DESC LIMIT ?)",
			entities.DeadLetterCap,
		).Error
	})
}

func (q *Queue) DeadLetters(ctx context.Context) ([]entities.DeadLetterEntry, error) {
	var rows []deadLetterModel
	if err := q.db.WithContext(ctx).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, q.logError("voting_queue_dead_letters_failed", err)
	}
	entries := make([]entities.DeadLetterEntry, 0, len(rows))
	for _, row := range rows {
		var event entities.QueueEvent
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			continue
		}
		entries = append(entries, entities.DeadLetterEntry{
			Event:         event,
			Cause:         row.Cause,
			Attempts:      row.Attempts,
			FirstFailedAt: row.FirstFailedAt.UTC(),
			LastFailedAt:  row.LastFailedAt.UTC(),
		})
	}
	return entries, nil
}

func (q *Queue) Health(ctx context.Context) (entities.QueueHealth, error) {
	var health entities.QueueHealth
	var pending, processing, dead int64
	if err := q.db.WithContext(ctx).Model(&queueEventModel{}).
		Where("status = ?", queueStatusPending).Count(&pending).Error; err != nil {
		return health, q.logError("voting_queue_health_failed", err)
	}
	if err := q.db.WithContext(ctx).Model(&queueEventModel{}).
		Where("status = ?", queueStatusProcessing).Count(&processing).Error; err != nil {
		return health, q.logError("voting_queue_health_failed", err)
	}
	if err := q.db.WithContext(ctx).Model(&deadLetterModel{}).Count(&dead).Error; err != nil {
		return health, q.logError("voting_queue_health_failed", err)
	}
	var lastDedup eventDedupModel
	if err := q.db.WithContext(ctx).Order("processed_at DESC").First(&lastDedup).Error; err == nil {
		health.LastProcessedAt = lastDedup.ProcessedAt.UTC()
	}
	health.Pending = int(pending)
	health.Processing = int(processing)
	health.DeadLettered = int(dead)
	return health, nil
}

// RecoverOrphans re-pends claims older than grace. The conditional update is
// naturally idempotent: a second pass, or a concurrent one, matches nothing.
func (q *Queue) RecoverOrphans(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := q.clock.Now().UTC().Add(-grace)
	result := q.db.WithContext(ctx).Model(&queueEventModel{}).
		Where("status = ?", queueStatusProcessing).
		Where("claimed_at <= ?", cutoff).
		Updates(map[string]any{
			"status":     queueStatusPending,
			"claimed_at": nil,
		})
	if result.Error != nil {
		return 0, q.logError("voting_queue_recover_failed", result.Error)
	}
	return int(result.RowsAffected), nil
}

// pendingCasts scopes a query to in-flight cast rows: pending or claimed,
// excluding casts whose vote also has a revoke on the queue. Rows disappear
// on acknowledge, after the ledger applied the event.
func (q *Queue) pendingCasts(ctx context.Context) *gorm.DB {
	return q.db.WithContext(ctx).Model(&queueEventModel{}).
		Where("direction = ?", string(entities.DirectionCast)).
		Where("status IN ?", []string{queueStatusPending, queueStatusProcessing}).
		Where(
			"NOT EXISTS (SELECT 1 FROM vote_queue AS revokes WHERE revokes.vote_id = vote_queue.vote_id AND revokes.direction = ?)",
			string(entities.DirectionRevoke),
		)
}

func (q *Queue) PendingCast(ctx context.Context, voterKey string, clipID string) (entities.QueueEvent, bool, error) {
	var row queueEventModel
	err := q.pendingCasts(ctx).
		Where("voter_key = ?", strings.TrimSpace(voterKey)).
		Where("clip_id = ?", strings.TrimSpace(clipID)).
		Order("occurred_at ASC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.QueueEvent{}, false, nil
		}
		return entities.QueueEvent{}, false, q.logError("voting_queue_pending_lookup_failed", err)
	}
	var event entities.QueueEvent
	if err := json.Unmarshal(row.Payload, &event); err != nil {
		return entities.QueueEvent{}, false, q.logError("voting_queue_pending_lookup_failed", err, "event_id", row.EventID)
	}
	return event, true, nil
}

func (q *Queue) CountPendingCasts(ctx context.Context, voterKey string, since time.Time) (int, error) {
	var count int64
	err := q.pendingCasts(ctx).
		Where("voter_key = ?", strings.TrimSpace(voterKey)).
		Where("occurred_at > ?", since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, q.logError("voting_queue_pending_count_failed", err)
	}
	return int(count), nil
}

func (q *Queue) CountPendingTypeForSlot(
	ctx context.Context,
	voterKey string,
	slotPosition int,
	voteType entities.VoteType,
) (int, error) {
	var count int64
	err := q.pendingCasts(ctx).
		Where("voter_key = ?", strings.TrimSpace(voterKey)).
		Where("slot_position = ?", slotPosition).
		Where("vote_type = ?", string(voteType)).
		Count(&count).Error
	if err != nil {
		return 0, q.logError("voting_queue_pending_count_failed", err)
	}
	return int(count), nil
}

func (q *Queue) logError(event string, err error, args ...any) error {
	fields := append([]any{
		"event", event,
		"module", "tournament/voting-engine",
		"layer", "adapter",
		"error", err.Error(),
	}, args...)
	q.logger.Error("vote queue operation failed", fields...)
	return err
}

var _ ports.VoteQueue = (*Queue)(nil)
