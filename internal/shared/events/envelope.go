package events

// Canonical vote broadcast contract shared by publishers and consumers.
// Topic names equal the event type; the envelope shape lives with the
// publishing context's ports.
const (
	TypeVoteCast    = "vote.cast"
	TypeVoteRevoked = "vote.revoked"

	SourceVotingEngine = "voting-engine"

	SchemaVersion = 1
)
