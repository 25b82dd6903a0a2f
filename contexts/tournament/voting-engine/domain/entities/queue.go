package entities

import "time"

type EventDirection string

const (
	DirectionCast   EventDirection = "cast"
	DirectionRevoke EventDirection = "revoke"
)

// QueueEvent is the wire shape of a vote mutation in flight between the fast
// path and the durable ledger. It exists only while pending or claimed.
type QueueEvent struct {
	EventID      string            `json:"event_id"`
	VoteID       string            `json:"vote_id"`
	ClipID       string            `json:"clip_id"`
	VoterKey     string            `json:"voter_key"`
	UserID       string            `json:"user_id,omitempty"`
	VoteType     VoteType          `json:"vote_type"`
	Weight       float64           `json:"weight"`
	SlotPosition int               `json:"slot_position"`
	Direction    EventDirection    `json:"direction"`
	OccurredAt   time.Time         `json:"occurred_at"`
	Attempts     int               `json:"attempts"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// DeadLetterEntry preserves an event that exhausted its delivery attempts,
// together with enough diagnostics to replay it by hand.
type DeadLetterEntry struct {
	Event         QueueEvent
	Cause         string
	Attempts      int
	FirstFailedAt time.Time
	LastFailedAt  time.Time
}

// DeadLetterCap bounds the dead-letter ring; the oldest entry is evicted
// once the cap is reached.
const DeadLetterCap = 1000

type QueueHealth struct {
	Pending         int
	Processing      int
	DeadLettered    int
	LastProcessedAt time.Time
}
