package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	application "cliparena/contexts/tournament/progression-service/application"
	"cliparena/contexts/tournament/progression-service/domain/entities"
	"cliparena/contexts/tournament/progression-service/ports"
)

const progressionJobName = "slot_progression"

// ProgressReport summarizes one progression run.
type ProgressReport struct {
	OK        bool
	Skipped   bool
	Processed int
	Results   []entities.SlotResult
	CheckedAt time.Time
}

// ProgressUseCase drives the slot/season state machine. Exactly one run
// executes at a time under the cron lock; a second caller within the lease
// no-ops without retrying.
type ProgressUseCase struct {
	Repo           ports.TournamentRepository
	Lock           ports.CronLock
	Counter        ports.CounterSyncer
	FastPath       ports.FastPathProbe
	Clock          ports.Clock
	LockTTL        time.Duration
	FreezeBuffer   time.Duration
	VotingDuration time.Duration
	Logger         *slog.Logger
}

// Run executes one progression tick: freeze imminent slots, process expired
// ones independently, and either advance to the next slot or finish the
// season. A top-level failure still attempts lock release; persisted state is
// re-evaluated on the next tick, so no manual recovery is ever needed.
func (uc ProgressUseCase) Run(ctx context.Context) (ProgressReport, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	report := ProgressReport{CheckedAt: now}

	ttl := uc.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	lockID, acquired, err := uc.Lock.Acquire(ctx, progressionJobName, ttl)
	if err != nil {
		return report, err
	}
	if !acquired {
		logger.Info("progression skipped, another run holds the lock",
			"event", "progression_lock_contended",
			"module", "tournament/progression-service",
			"layer", "application",
		)
		report.Skipped = true
		report.OK = true
		return report, nil
	}
	defer func() {
		if err := uc.Lock.Release(ctx, progressionJobName, lockID); err != nil {
			logger.Warn("progression lock release failed, lease will expire",
				"event", "progression_lock_release_failed",
				"module", "tournament/progression-service",
				"layer", "application",
				"error", err.Error(),
			)
		}
	}()

	season, found, err := uc.Repo.ActiveSeason(ctx)
	if err != nil {
		return report, err
	}
	if !found {
		report.OK = true
		return report, nil
	}

	uc.freezeImminentSlots(ctx, logger, season, now)

	expired, err := uc.Repo.ExpiredVotingSlots(ctx, season.SeasonID, now)
	if err != nil {
		return report, err
	}
	for _, slot := range expired {
		result := uc.processSlot(ctx, logger, season, slot, now)
		report.Results = append(report.Results, result)
		report.Processed++
	}

	report.OK = true
	logger.Info("progression run completed",
		"event", "progression_run_completed",
		"module", "tournament/progression-service",
		"layer", "application",
		"season_id", season.SeasonID,
		"processed", report.Processed,
	)
	return report, nil
}

// freezeImminentSlots blocks the fast path for slots ending inside the
// buffer so no vote lands between the final sync and the lock.
func (uc ProgressUseCase) freezeImminentSlots(
	ctx context.Context,
	logger *slog.Logger,
	season entities.Season,
	now time.Time,
) {
	buffer := uc.FreezeBuffer
	if buffer <= 0 {
		buffer = 120 * time.Second
	}
	closing, err := uc.Repo.SlotsEndingWithin(ctx, season.SeasonID, now, buffer)
	if err != nil {
		logger.Warn("freeze window scan failed",
			"event", "progression_freeze_scan_failed",
			"module", "tournament/progression-service",
			"layer", "application",
			"error", err.Error(),
		)
		return
	}
	for _, slot := range closing {
		if err := uc.Counter.FreezeSlot(ctx, slot.Position); err != nil {
			logger.Warn("slot freeze failed",
				"event", "progression_freeze_failed",
				"module", "tournament/progression-service",
				"layer", "application",
				"slot_position", slot.Position,
				"error", err.Error(),
			)
		}
	}
}

func (uc ProgressUseCase) processSlot(
	ctx context.Context,
	logger *slog.Logger,
	season entities.Season,
	slot entities.Slot,
	now time.Time,
) entities.SlotResult {
	result := entities.SlotResult{SlotPosition: slot.Position}

	clips, err := uc.Repo.ActiveClips(ctx, season.SeasonID, slot.Position)
	if err != nil {
		result.Outcome = entities.OutcomeError
		result.Error = err.Error()
		return result
	}

	synced := true
	if fastPath, ferr := uc.FastPath.AsyncVotes(ctx); ferr == nil && fastPath && len(clips) > 0 {
		ids := clipIDs(clips)
		if serr := uc.Counter.ForceSync(ctx, ids); serr != nil {
			// Rank on persisted scores; the un-drained delta survives in the
			// counter and reconciles later.
			synced = false
			logger.Warn("pre-rank counter sync failed",
				"event", "progression_sync_failed",
				"module", "tournament/progression-service",
				"layer", "application",
				"slot_position", slot.Position,
				"error", serr.Error(),
			)
		} else if clips, err = uc.Repo.ActiveClips(ctx, season.SeasonID, slot.Position); err != nil {
			result.Outcome = entities.OutcomeError
			result.Error = err.Error()
			return result
		}
	}

	if len(clips) == 0 {
		if err := uc.Repo.SetSlotWaiting(ctx, slot.SlotID, now); err != nil {
			result.Outcome = entities.OutcomeError
			result.Error = err.Error()
			return result
		}
		result.Outcome = entities.OutcomeWaitingForClips
		return result
	}

	sort.SliceStable(clips, func(i, j int) bool {
		if clips[i].WeightedScore != clips[j].WeightedScore {
			return clips[i].WeightedScore > clips[j].WeightedScore
		}
		return clips[i].VoteCount > clips[j].VoteCount
	})
	winner := clips[0]

	if err := uc.Repo.LockSlot(ctx, slot.SlotID, winner.ClipID, now); err != nil {
		result.Outcome = entities.OutcomeError
		result.Error = err.Error()
		return result
	}
	result.WinnerClipID = winner.ClipID

	// The slot is locked; anything failing from here is partial, picked up
	// by the next tick against persisted state.
	partial := !synced
	if err := uc.Repo.MarkClipLocked(ctx, winner.ClipID, now); err != nil {
		partial = true
		result.Error = err.Error()
	}
	losers := make([]string, 0, len(clips)-1)
	for _, clip := range clips[1:] {
		losers = append(losers, clip.ClipID)
	}
	if len(losers) > 0 {
		if err := uc.Repo.EliminateClips(ctx, losers, "lost_slot", now); err != nil {
			partial = true
			result.Error = err.Error()
		} else {
			result.Eliminated = len(losers)
		}
	}
	if err := uc.Counter.ClearClips(ctx, clipIDs(clips)); err != nil {
		partial = true
		result.Error = err.Error()
	}
	// Slot positions repeat across seasons, so a locked slot must release
	// its freeze or the next season's slot at this position stays frozen.
	if err := uc.Counter.UnfreezeSlot(ctx, slot.Position); err != nil {
		partial = true
		result.Error = err.Error()
	}

	logger.Info("slot locked",
		"event", "progression_slot_locked",
		"module", "tournament/progression-service",
		"layer", "application",
		"slot_position", slot.Position,
		"winner_clip_id", winner.ClipID,
		"eliminated", result.Eliminated,
	)

	outcome, err := uc.advance(ctx, logger, season, slot.Position, now)
	if err != nil {
		result.Outcome = entities.OutcomePartial
		result.Error = err.Error()
		return result
	}
	if partial {
		result.Outcome = entities.OutcomePartial
		return result
	}
	result.Outcome = outcome
	return result
}

// advance moves the season to the next slot, or finishes it when the locked
// slot was the last one.
func (uc ProgressUseCase) advance(
	ctx context.Context,
	logger *slog.Logger,
	season entities.Season,
	lockedPosition int,
	now time.Time,
) (entities.Outcome, error) {
	next := lockedPosition + 1
	if next > season.TotalSlots {
		if err := uc.Repo.FinishSeason(ctx, season.SeasonID, now); err != nil {
			return entities.OutcomeError, err
		}
		leftover, err := uc.Repo.EliminateRemainingClips(ctx, season.SeasonID, "season_finished", now)
		if err != nil {
			return entities.OutcomeError, err
		}
		logger.Info("season finished",
			"event", "progression_season_finished",
			"module", "tournament/progression-service",
			"layer", "application",
			"season_id", season.SeasonID,
			"leftover_clips_eliminated", leftover,
		)
		return entities.OutcomeFinished, nil
	}

	nextSlot, found, err := uc.Repo.SlotByPosition(ctx, season.SeasonID, next)
	if err != nil {
		return entities.OutcomeError, err
	}
	if !found {
		return entities.OutcomeError, fmt.Errorf("slot %d missing for season %s", next, season.SeasonID)
	}

	clips, err := uc.Repo.ActiveClips(ctx, season.SeasonID, next)
	if err != nil {
		return entities.OutcomeError, err
	}
	if len(clips) == 0 {
		if err := uc.Repo.SetSlotWaiting(ctx, nextSlot.SlotID, now); err != nil {
			return entities.OutcomeError, err
		}
		return entities.OutcomeLockedWaiting, nil
	}

	duration := uc.VotingDuration
	if nextSlot.VotingDurationHours > 0 {
		duration = time.Duration(nextSlot.VotingDurationHours) * time.Hour
	}
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	if err := uc.Repo.ActivateSlot(ctx, nextSlot.SlotID, now, now.Add(duration)); err != nil {
		return entities.OutcomeError, err
	}
	return entities.OutcomeAdvanced, nil
}

func (uc ProgressUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func clipIDs(clips []entities.Clip) []string {
	ids := make([]string, 0, len(clips))
	for _, clip := range clips {
		ids = append(ids, clip.ClipID)
	}
	return ids
}
