package entities

import "time"

type SeasonStatus string

const (
	SeasonStatusDraft    SeasonStatus = "draft"
	SeasonStatusActive   SeasonStatus = "active"
	SeasonStatusFinished SeasonStatus = "finished"
)

// Season is a bounded sequence of slots. Status only moves forward; a
// finished season is never reopened.
type Season struct {
	SeasonID   string
	Status     SeasonStatus
	TotalSlots int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type SlotStatus string

const (
	SlotStatusUpcoming        SlotStatus = "upcoming"
	SlotStatusWaitingForClips SlotStatus = "waiting_for_clips"
	SlotStatusVoting          SlotStatus = "voting"
	SlotStatusLocked          SlotStatus = "locked"
)

// Slot is one round of a season. Status is monotonic except the
// voting/waiting_for_clips pair, which can swap until the slot locks.
type Slot struct {
	SlotID              string
	SeasonID            string
	Position            int
	Status              SlotStatus
	VotingStartedAt     *time.Time
	VotingEndsAt        *time.Time
	VotingDurationHours int
	WinnerClipID        string
	UpdatedAt           time.Time
}

func (s Slot) Expired(now time.Time) bool {
	return s.Status == SlotStatusVoting && s.VotingEndsAt != nil && !s.VotingEndsAt.After(now)
}

type ClipStatus string

const (
	ClipStatusActive     ClipStatus = "active"
	ClipStatusLocked     ClipStatus = "locked"
	ClipStatusEliminated ClipStatus = "eliminated"
	ClipStatusRejected   ClipStatus = "rejected"
)

type Clip struct {
	ClipID        string
	SeasonID      string
	SlotPosition  int
	Status        ClipStatus
	VoteCount     int
	WeightedScore float64
	HypeScore     float64
}

// Outcome labels what happened to one slot during a progression run.
type Outcome string

const (
	OutcomeAdvanced        Outcome = "advanced"
	OutcomeLockedWaiting   Outcome = "locked_waiting"
	OutcomeFinished        Outcome = "finished"
	OutcomeWaitingForClips Outcome = "waiting_for_clips"
	OutcomePartial         Outcome = "partial"
	OutcomeError           Outcome = "error"
)

// SlotResult records the independent outcome of one expired slot; one slot
// failing never blocks the rest of the run.
type SlotResult struct {
	SlotPosition int
	Outcome      Outcome
	WinnerClipID string
	Eliminated   int
	Error        string
}
