package commands

import (
	"context"
	"strings"
	"time"

	application "cliparena/contexts/tournament/voting-engine/application"
	"cliparena/contexts/tournament/voting-engine/domain/entities"
	domainerrors "cliparena/contexts/tournament/voting-engine/domain/errors"
	"cliparena/contexts/tournament/voting-engine/ports"
	sharedevents "cliparena/internal/shared/events"
)

// RevokeVoteCommand removes a voter's own live vote from a clip.
type RevokeVoteCommand struct {
	Identity ports.VoterIdentity
	ClipID   string
}

type RevokeVoteResult struct {
	RevokedType     entities.VoteType
	NewScore        float64
	NewVoteCount    int
	TotalVotesToday int
	Remaining       entities.RemainingVotes
}

// RevokeVote deletes the ledger row and its derived counters atomically. A
// vote still travelling the queue is revoked through its pending cast event
// instead: the fast-path delta is cancelled and the queued revoke removes
// the ledger row once the cast lands.
func (uc VoteUseCase) RevokeVote(ctx context.Context, cmd RevokeVoteCommand) (RevokeVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	clipID := strings.TrimSpace(cmd.ClipID)
	voterKey := strings.TrimSpace(cmd.Identity.VoterKey)
	if clipID == "" || voterKey == "" {
		return RevokeVoteResult{}, domainerrors.ErrInvalidVoteInput
	}

	asyncVotes, err := uc.Flags.AsyncVotes(ctx)
	if err != nil {
		return RevokeVoteResult{}, uc.failClosed(logger, "async_votes flag", err)
	}

	deleted, err := uc.Ledger.DeleteVote(ctx, voterKey, clipID)
	if err != nil && err != domainerrors.ErrNotVoted {
		return RevokeVoteResult{}, uc.failClosed(logger, "ledger delete", err)
	}
	if err == domainerrors.ErrNotVoted {
		if !asyncVotes {
			return RevokeVoteResult{}, err
		}
		pending, found, perr := uc.Queue.PendingCast(ctx, voterKey, clipID)
		if perr != nil {
			return RevokeVoteResult{}, uc.failClosed(logger, "pending lookup", perr)
		}
		if !found {
			return RevokeVoteResult{}, domainerrors.ErrNotVoted
		}
		deleted = voteFromQueueEvent(pending)
		if derr := uc.Counter.Decrement(ctx, clipID, deleted.VoteID, deleted.Weight); derr != nil {
			logger.Warn("fast-path decrement failed for in-flight revoke",
				"event", "voting_revoke_counter_failed",
				"module", "tournament/voting-engine",
				"layer", "application",
				"vote_id", deleted.VoteID,
				"clip_id", clipID,
				"error", derr.Error(),
			)
		}
	}

	now := uc.now()
	event := queueEventFromVote(deleted, entities.DirectionRevoke, now)
	if err := uc.Queue.Push(ctx, event); err != nil {
		logger.Error("revoke event enqueue failed",
			"event", "voting_revoke_enqueue_failed",
			"module", "tournament/voting-engine",
			"layer", "application",
			"vote_id", deleted.VoteID,
			"clip_id", clipID,
			"error", err.Error(),
		)
	}

	clip, err := uc.Reader.GetClip(ctx, clipID)
	if err != nil {
		return RevokeVoteResult{}, uc.failClosed(logger, "clip lookup", err)
	}

	votesToday, err := uc.Ledger.CountVotesSince(ctx, voterKey, now.Add(-24*time.Hour))
	if err != nil {
		return RevokeVoteResult{}, uc.failClosed(logger, "daily quota", err)
	}
	if asyncVotes {
		inFlight, perr := uc.Queue.CountPendingCasts(ctx, voterKey, now.Add(-24*time.Hour))
		if perr != nil {
			return RevokeVoteResult{}, uc.failClosed(logger, "daily quota", perr)
		}
		votesToday += inFlight
	}
	remaining, err := uc.remainingVotes(ctx, voterKey, deleted.SlotPosition, votesToday, asyncVotes)
	if err != nil {
		return RevokeVoteResult{}, uc.failClosed(logger, "remaining quota", err)
	}

	uc.broadcast(ctx, logger, sharedevents.TypeVoteRevoked, deleted, clip.WeightedScore)
	logger.Info("vote revoked",
		"event", "voting_revoke_accepted",
		"module", "tournament/voting-engine",
		"layer", "application",
		"vote_id", deleted.VoteID,
		"clip_id", clipID,
		"vote_type", string(deleted.VoteType),
	)
	return RevokeVoteResult{
		RevokedType:     deleted.VoteType,
		NewScore:        clip.WeightedScore,
		NewVoteCount:    clip.VoteCount,
		TotalVotesToday: votesToday,
		Remaining:       remaining,
	}, nil
}
