package workers

import (
	"context"
	"log/slog"

	application "cliparena/contexts/tournament/voting-engine/application"
	"cliparena/contexts/tournament/voting-engine/ports"
)

// CounterReconciler periodically merges fast-path counter deltas into the
// ledger's durable columns for every clip in the current voting slot.
type CounterReconciler struct {
	Reader  ports.TournamentReader
	Counter ports.CounterStore
	Flags   ports.FlagProvider
	Logger  *slog.Logger
}

func (r CounterReconciler) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	asyncVotes, err := r.Flags.AsyncVotes(ctx)
	if err != nil {
		return err
	}
	if !asyncVotes {
		return nil
	}

	season, found, err := r.Reader.GetActiveSeason(ctx)
	if err != nil || !found {
		return err
	}
	slot, found, err := r.Reader.GetCurrentSlot(ctx, season.SeasonID)
	if err != nil || !found {
		return err
	}
	if slot.Status != "voting" {
		return nil
	}

	clips, err := r.Reader.ListClipsBySlot(ctx, season.SeasonID, slot.Position)
	if err != nil {
		return err
	}
	clipIDs := make([]string, 0, len(clips))
	for _, clip := range clips {
		if clip.Status == "active" {
			clipIDs = append(clipIDs, clip.ClipID)
		}
	}
	if len(clipIDs) == 0 {
		return nil
	}
	if err := r.Counter.ForceSync(ctx, clipIDs); err != nil {
		logger.Error("counter reconciliation failed",
			"event", "voting_counter_sync_failed",
			"module", "tournament/voting-engine",
			"layer", "worker",
			"slot_position", slot.Position,
			"clips", len(clipIDs),
			"error", err.Error(),
		)
		return err
	}
	logger.Debug("counter deltas reconciled",
		"event", "voting_counter_synced",
		"module", "tournament/voting-engine",
		"layer", "worker",
		"slot_position", slot.Position,
		"clips", len(clipIDs),
	)
	return nil
}
