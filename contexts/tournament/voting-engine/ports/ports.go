package ports

import (
	"context"
	"time"

	"cliparena/contexts/tournament/voting-engine/domain/entities"
)

// InsertVoteResult reports the durable outcome of a ledger insert together
// with the counters derived inside the same transaction.
type InsertVoteResult struct {
	VoteID           string
	WasNewVote       bool
	NewVoteCount     int
	NewWeightedScore float64
}

// VoteLedger is the durable, race-free vote store. InsertVote must reject the
// second of two concurrent identical requests; DeleteVote must decrement the
// derived counters in the same transaction that removes the row.
type VoteLedger interface {
	InsertVote(ctx context.Context, vote entities.Vote) (InsertVoteResult, error)
	// AccumulateVote adds weight to an existing vote under the same atomic
	// primitive as InsertVote. Used only when multi-vote mode is active.
	AccumulateVote(ctx context.Context, voterKey string, clipID string, voteType entities.VoteType, weight float64) (InsertVoteResult, error)
	DeleteVote(ctx context.Context, voterKey string, clipID string) (entities.Vote, error)
	// ApplyQueuedVote replays a queue event into the ledger. It must tolerate
	// redelivery of the same vote ID; the bool reports whether anything was
	// actually applied.
	ApplyQueuedVote(ctx context.Context, event entities.QueueEvent) (bool, error)
	// ApplyCounterDelta merges a fast-path delta into the durable counters
	// without overwriting concurrent writes.
	ApplyCounterDelta(ctx context.Context, clipID string, votes int, weighted float64) error
	GetVoteByIdentity(ctx context.Context, voterKey string, clipID string) (entities.Vote, bool, error)
	CountVotesSince(ctx context.Context, voterKey string, since time.Time) (int, error)
	CountTypeForSlot(ctx context.Context, voterKey string, slotPosition int, voteType entities.VoteType) (int, error)
	ListVoterClipIDs(ctx context.Context, voterKey string, slotPosition int) ([]string, error)
}

// ClipProjection is the voting engine's read model of a clip. Clip lifecycle
// is owned by the progression service.
type ClipProjection struct {
	ClipID        string
	SeasonID      string
	SlotPosition  int
	OwnerKey      string
	OwnerUserID   string
	Status        string
	VoteCount     int
	WeightedScore float64
	HypeScore     float64
}

type SlotProjection struct {
	SlotID          string
	SeasonID        string
	Position        int
	Status          string
	VotingStartedAt *time.Time
	VotingEndsAt    *time.Time
}

type SeasonProjection struct {
	SeasonID   string
	Status     string
	TotalSlots int
}

// TournamentReader exposes the season/slot/clip state the admission gate and
// voting-state query need. No caching layer sits in front of it; callers read
// current persisted state on every request.
type TournamentReader interface {
	GetClip(ctx context.Context, clipID string) (ClipProjection, error)
	GetActiveSeason(ctx context.Context) (SeasonProjection, bool, error)
	GetCurrentSlot(ctx context.Context, seasonID string) (SlotProjection, bool, error)
	ListClipsBySlot(ctx context.Context, seasonID string, slotPosition int) ([]ClipProjection, error)
}

// CounterStore is the fast-path vote counter. Increment and Decrement are
// commutative and deduplicated per vote ID so redelivered events merge into
// the same state regardless of arrival order.
type CounterStore interface {
	Increment(ctx context.Context, clipID string, voteID string, weight float64) error
	Decrement(ctx context.Context, clipID string, voteID string, weight float64) error
	CountAndScore(ctx context.Context, clipID string) (int, float64, bool, error)
	// ForceSync drains accumulated deltas for the given clips into the ledger.
	// Safe to run concurrently with new votes: deltas are swapped out before
	// being applied, never re-read.
	ForceSync(ctx context.Context, clipIDs []string) error
	ClearClips(ctx context.Context, clipIDs []string) error
	// FreezeSlot blocks the fast path for a slot whose transition is imminent.
	FreezeSlot(ctx context.Context, slotPosition int) error
	SlotFrozen(ctx context.Context, slotPosition int) (bool, error)
}

// VoteQueue is the at-least-once delivery pipeline for vote events.
type VoteQueue interface {
	Push(ctx context.Context, event entities.QueueEvent) error
	// Pop atomically claims up to n pending events; each claimed event is
	// owned by exactly one consumer until acknowledged or recovered.
	Pop(ctx context.Context, n int) ([]entities.QueueEvent, error)
	Acknowledge(ctx context.Context, events ...entities.QueueEvent) error
	MoveToDeadLetter(ctx context.Context, event entities.QueueEvent, cause string, attempts int) error
	DeadLetters(ctx context.Context) ([]entities.DeadLetterEntry, error)
	Health(ctx context.Context) (entities.QueueHealth, error)
	// RecoverOrphans returns events claimed longer than grace ago to pending.
	// Idempotent under repeated and concurrent calls.
	RecoverOrphans(ctx context.Context, grace time.Duration) (int, error)
	// PendingCast reports the in-flight cast event for a voter/clip pair:
	// pushed but not yet applied to the ledger, with no matching revoke in
	// flight. Claimed-but-unacknowledged events still count as in flight.
	PendingCast(ctx context.Context, voterKey string, clipID string) (entities.QueueEvent, bool, error)
	// CountPendingCasts counts a voter's in-flight cast events newer than since.
	CountPendingCasts(ctx context.Context, voterKey string, since time.Time) (int, error)
	// CountPendingTypeForSlot counts a voter's in-flight cast events of one
	// vote type within a slot.
	CountPendingTypeForSlot(ctx context.Context, voterKey string, slotPosition int, voteType entities.VoteType) (int, error)
}

// FlagProvider serves runtime feature flags behind a short-lived cache so all
// process instances observe a consistent, if briefly stale, view.
type FlagProvider interface {
	MultiVote(ctx context.Context) (bool, error)
	AuthRequired(ctx context.Context) (bool, error)
	AsyncVotes(ctx context.Context) (bool, error)
}

// VoterIdentity is the resolved identity of a request: a device-derived
// voter key, optionally an authenticated user.
type VoterIdentity struct {
	VoterKey string
	UserID   string
	Banned   bool
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventEnvelope is the broadcast shape published after vote mutations.
// Broadcast delivery is fire-and-forget; failures are logged, never returned
// to the voter.
type EventEnvelope struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	OccurredAt    time.Time `json:"occurred_at"`
	SourceService string    `json:"source_service"`
	SchemaVersion int       `json:"schema_version"`
	PartitionKey  string    `json:"partition_key"`
	Data          []byte    `json:"data"`
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
