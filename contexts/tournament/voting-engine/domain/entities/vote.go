package entities

import "time"

type VoteType string

const (
	VoteTypeStandard VoteType = "standard"
	VoteTypeSuper    VoteType = "super"
	VoteTypeMega     VoteType = "mega"
)

func (t VoteType) Valid() bool {
	switch t {
	case VoteTypeStandard, VoteTypeSuper, VoteTypeMega:
		return true
	}
	return false
}

// Special vote types are capped at one per voter per slot.
func (t VoteType) Special() bool {
	return t == VoteTypeSuper || t == VoteTypeMega
}

type Vote struct {
	VoteID       string
	ClipID       string
	VoterKey     string
	UserID       string
	VoteType     VoteType
	Weight       float64
	SlotPosition int
	Flagged      bool
	CreatedAt    time.Time
}

// EffectiveWeight is the score contribution of the vote. Flagged votes stay
// in the ledger for audit but contribute nothing.
func (v Vote) EffectiveWeight() float64 {
	if v.Flagged {
		return 0
	}
	return v.Weight
}

// RemainingVotes is the per-voter quota snapshot returned on every vote
// mutation so clients can render budget state without a second round trip.
type RemainingVotes struct {
	Standard int
	Super    int
	Mega     int
}
