package httptransport

import "time"

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type CastVoteRequest struct {
	ClipID   string `json:"clipId"`
	VoteType string `json:"voteType,omitempty"`
}

type RevokeVoteRequest struct {
	ClipID string `json:"clipId"`
}

type RemainingVotes struct {
	Standard int `json:"standard"`
	Super    int `json:"super"`
	Mega     int `json:"mega"`
}

type CastVoteResponse struct {
	Success         bool           `json:"success"`
	ClipID          string         `json:"clipId"`
	VoteType        string         `json:"voteType"`
	NewScore        float64        `json:"newScore"`
	TotalVotesToday int            `json:"totalVotesToday"`
	RemainingVotes  RemainingVotes `json:"remainingVotes"`
}

type RevokeVoteResponse struct {
	Success         bool           `json:"success"`
	ClipID          string         `json:"clipId"`
	RevokedVoteType string         `json:"revokedVoteType"`
	NewScore        float64        `json:"newScore"`
	TotalVotesToday int            `json:"totalVotesToday"`
	RemainingVotes  RemainingVotes `json:"remainingVotes"`
}

type ClipStateItem struct {
	ClipID        string  `json:"clipId"`
	Status        string  `json:"status"`
	VoteCount     int     `json:"voteCount"`
	WeightedScore float64 `json:"weightedScore"`
	HypeScore     float64 `json:"hypeScore"`
}

type VotingStateResponse struct {
	Clips                []ClipStateItem `json:"clips"`
	TotalVotesToday      int             `json:"totalVotesToday"`
	RemainingVotes       RemainingVotes  `json:"remainingVotes"`
	VotedClipIDs         []string        `json:"votedClipIds"`
	CurrentSlot          int             `json:"currentSlot"`
	TotalSlots           int             `json:"totalSlots"`
	VotingStartedAt      *time.Time      `json:"votingStartedAt,omitempty"`
	VotingEndsAt         *time.Time      `json:"votingEndsAt,omitempty"`
	TimeRemainingSeconds int             `json:"timeRemainingSeconds"`
	TotalClipsInSlot     int             `json:"totalClipsInSlot"`
	ClipsShown           int             `json:"clipsShown"`
	HasMoreClips         bool            `json:"hasMoreClips"`
}

type QueueHealthResponse struct {
	Pending         int        `json:"pending"`
	Processing      int        `json:"processing"`
	DeadLettered    int        `json:"deadLettered"`
	LastProcessedAt *time.Time `json:"lastProcessedAt,omitempty"`
}
