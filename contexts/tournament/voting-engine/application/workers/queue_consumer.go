package workers

import (
	"context"
	"log/slog"
	"time"

	application "cliparena/contexts/tournament/voting-engine/application"
	"cliparena/contexts/tournament/voting-engine/ports"
)

// QueueConsumer drains the vote event queue into the durable ledger.
// Delivery is at-least-once: the ledger deduplicates by event ID, so a
// redelivered event is acknowledged without applying twice.
type QueueConsumer struct {
	Queue       ports.VoteQueue
	Ledger      ports.VoteLedger
	Clock       ports.Clock
	BatchSize   int
	MaxAttempts int
	OrphanGrace time.Duration
	Logger      *slog.Logger
}

// RunOnce recovers orphaned claims, pops one batch, and applies each event
// independently. A failing event stays claimed so orphan recovery retries it;
// once it exhausts MaxAttempts it moves to the dead-letter ring instead.
func (c QueueConsumer) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	grace := c.OrphanGrace
	if grace <= 0 {
		grace = 5 * time.Minute
	}
	recovered, err := c.Queue.RecoverOrphans(ctx, grace)
	if err != nil {
		logger.Error("orphan recovery failed",
			"event", "voting_queue_recover_failed",
			"module", "tournament/voting-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if recovered > 0 {
		logger.Warn("orphaned vote events returned to pending",
			"event", "voting_queue_orphans_recovered",
			"module", "tournament/voting-engine",
			"layer", "worker",
			"recovered", recovered,
		)
	}

	limit := c.BatchSize
	if limit <= 0 {
		limit = 100
	}
	events, err := c.Queue.Pop(ctx, limit)
	if err != nil {
		logger.Error("queue pop failed",
			"event", "voting_queue_pop_failed",
			"module", "tournament/voting-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(events) == 0 {
		return nil
	}

	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	applied := 0
	for _, event := range events {
		if _, err := c.Ledger.ApplyQueuedVote(ctx, event); err != nil {
			logger.Error("vote event apply failed",
				"event", "voting_queue_apply_failed",
				"module", "tournament/voting-engine",
				"layer", "worker",
				"event_id", event.EventID,
				"vote_id", event.VoteID,
				"attempts", event.Attempts,
				"error", err.Error(),
			)
			if event.Attempts >= maxAttempts {
				if dlqErr := c.Queue.MoveToDeadLetter(ctx, event, err.Error(), event.Attempts); dlqErr != nil {
					logger.Error("dead-letter move failed",
						"event", "voting_queue_dead_letter_failed",
						"module", "tournament/voting-engine",
						"layer", "worker",
						"event_id", event.EventID,
						"error", dlqErr.Error(),
					)
				}
			}
			// Otherwise the event stays claimed; orphan recovery re-pends it.
			continue
		}
		if err := c.Queue.Acknowledge(ctx, event); err != nil {
			logger.Error("vote event ack failed",
				"event", "voting_queue_ack_failed",
				"module", "tournament/voting-engine",
				"layer", "worker",
				"event_id", event.EventID,
				"error", err.Error(),
			)
			continue
		}
		applied++
	}

	logger.Info("queue batch processed",
		"event", "voting_queue_batch_processed",
		"module", "tournament/voting-engine",
		"layer", "worker",
		"popped", len(events),
		"applied", applied,
	)
	return nil
}
