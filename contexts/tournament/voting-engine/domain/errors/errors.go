package errors

import "errors"

var (
	ErrInvalidVoteInput  = errors.New("invalid vote input")
	ErrAlreadyVoted      = errors.New("voter already voted for this clip")
	ErrSelfVoteForbidden = errors.New("self voting is forbidden")
	ErrClipNotFound      = errors.New("clip not found")
	ErrInvalidClipStatus = errors.New("clip is not accepting votes")
	ErrDailyLimit        = errors.New("daily vote limit reached")
	ErrSuperLimit        = errors.New("super vote already used for this slot")
	ErrMegaLimit         = errors.New("mega vote already used for this slot")
	ErrNoActiveSlot      = errors.New("no slot is currently open for voting")
	ErrWrongSlot         = errors.New("clip does not belong to the current slot")
	ErrVotingExpired     = errors.New("voting window has closed")
	ErrWaitingForClips   = errors.New("slot is waiting for clips")
	ErrAuthRequired      = errors.New("authentication required to vote")
	ErrUserBanned        = errors.New("voter is banned")
	ErrNotVoted          = errors.New("no vote to revoke")
	ErrStoreUnavailable  = errors.New("vote store unavailable")
)
