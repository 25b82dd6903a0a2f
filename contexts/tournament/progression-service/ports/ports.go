package ports

import (
	"context"
	"time"

	"cliparena/contexts/tournament/progression-service/domain/entities"
)

// TournamentRepository owns season/slot/clip lifecycle mutations. Every read
// hits persisted state so a failed tick self-corrects on the next one.
type TournamentRepository interface {
	ActiveSeason(ctx context.Context) (entities.Season, bool, error)
	// ExpiredVotingSlots lists voting slots of the active season whose window
	// ended before now, ordered by position ascending for deterministic
	// processing.
	ExpiredVotingSlots(ctx context.Context, seasonID string, now time.Time) ([]entities.Slot, error)
	// SlotsEndingWithin lists voting slots whose window ends inside the
	// freeze buffer, so the fast path can be frozen before the transition.
	SlotsEndingWithin(ctx context.Context, seasonID string, now time.Time, buffer time.Duration) ([]entities.Slot, error)
	SlotByPosition(ctx context.Context, seasonID string, position int) (entities.Slot, bool, error)
	ActiveClips(ctx context.Context, seasonID string, position int) ([]entities.Clip, error)
	// LockSlot records the winner and moves the slot to locked.
	LockSlot(ctx context.Context, slotID string, winnerClipID string, at time.Time) error
	MarkClipLocked(ctx context.Context, clipID string, at time.Time) error
	EliminateClips(ctx context.Context, clipIDs []string, reason string, at time.Time) error
	SetSlotWaiting(ctx context.Context, slotID string, at time.Time) error
	ActivateSlot(ctx context.Context, slotID string, startsAt time.Time, endsAt time.Time) error
	FinishSeason(ctx context.Context, seasonID string, at time.Time) error
	// EliminateRemainingClips is the season-finish safety net for clips that
	// never reached a locked slot.
	EliminateRemainingClips(ctx context.Context, seasonID string, reason string, at time.Time) (int, error)
}

// CronLock grants exclusive execution of a named job under a bounded lease.
// A crashed holder cannot starve future runs: the lease expires on its own.
type CronLock interface {
	Acquire(ctx context.Context, jobName string, ttl time.Duration) (lockID string, acquired bool, err error)
	Release(ctx context.Context, jobName string, lockID string) error
}

// CounterSyncer is the progression service's view of the voting fast path:
// drain deltas before ranking, freeze slots near expiry, purge after locking.
type CounterSyncer interface {
	ForceSync(ctx context.Context, clipIDs []string) error
	ClearClips(ctx context.Context, clipIDs []string) error
	FreezeSlot(ctx context.Context, slotPosition int) error
	UnfreezeSlot(ctx context.Context, slotPosition int) error
}

// FastPathProbe reports whether the fast-path counter mode is active, which
// decides whether ForceSync must run before ranking.
type FastPathProbe interface {
	AsyncVotes(ctx context.Context) (bool, error)
}

type Clock interface {
	Now() time.Time
}
