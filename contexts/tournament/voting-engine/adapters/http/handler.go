package httpadapter

import (
	"context"
	"log/slog"

	"cliparena/contexts/tournament/voting-engine/application/commands"
	"cliparena/contexts/tournament/voting-engine/application/queries"
	"cliparena/contexts/tournament/voting-engine/domain/entities"
	"cliparena/contexts/tournament/voting-engine/ports"
	httptransport "cliparena/contexts/tournament/voting-engine/transport/http"
)

type Handler struct {
	Votes  commands.VoteUseCase
	State  queries.StateUseCase
	Queue  ports.VoteQueue
	Logger *slog.Logger
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	identity ports.VoterIdentity,
	req httptransport.CastVoteRequest,
) (httptransport.CastVoteResponse, error) {
	result, err := h.Votes.CastVote(ctx, commands.CastVoteCommand{
		Identity: identity,
		ClipID:   req.ClipID,
		VoteType: entities.VoteType(req.VoteType),
	})
	if err != nil {
		return httptransport.CastVoteResponse{}, err
	}
	return httptransport.CastVoteResponse{
		Success:         true,
		ClipID:          result.Vote.ClipID,
		VoteType:        string(result.Vote.VoteType),
		NewScore:        result.NewScore,
		TotalVotesToday: result.TotalVotesToday,
		RemainingVotes:  mapRemaining(result.Remaining),
	}, nil
}

func (h Handler) RevokeVoteHandler(
	ctx context.Context,
	identity ports.VoterIdentity,
	req httptransport.RevokeVoteRequest,
) (httptransport.RevokeVoteResponse, error) {
	result, err := h.Votes.RevokeVote(ctx, commands.RevokeVoteCommand{
		Identity: identity,
		ClipID:   req.ClipID,
	})
	if err != nil {
		return httptransport.RevokeVoteResponse{}, err
	}
	return httptransport.RevokeVoteResponse{
		Success:         true,
		ClipID:          req.ClipID,
		RevokedVoteType: string(result.RevokedType),
		NewScore:        result.NewScore,
		TotalVotesToday: result.TotalVotesToday,
		RemainingVotes:  mapRemaining(result.Remaining),
	}, nil
}

func (h Handler) VotingStateHandler(
	ctx context.Context,
	identity ports.VoterIdentity,
) (httptransport.VotingStateResponse, error) {
	state, err := h.State.VotingState(ctx, identity)
	if err != nil {
		return httptransport.VotingStateResponse{}, err
	}
	clips := make([]httptransport.ClipStateItem, 0, len(state.Clips))
	for _, clip := range state.Clips {
		clips = append(clips, httptransport.ClipStateItem{
			ClipID:        clip.ClipID,
			Status:        clip.Status,
			VoteCount:     clip.VoteCount,
			WeightedScore: clip.WeightedScore,
			HypeScore:     clip.HypeScore,
		})
	}
	return httptransport.VotingStateResponse{
		Clips:                clips,
		TotalVotesToday:      state.TotalVotesToday,
		RemainingVotes:       mapRemaining(state.Remaining),
		VotedClipIDs:         state.VotedClipIDs,
		CurrentSlot:          state.CurrentSlot,
		TotalSlots:           state.TotalSlots,
		VotingStartedAt:      state.VotingStartedAt,
		VotingEndsAt:         state.VotingEndsAt,
		TimeRemainingSeconds: state.TimeRemainingSeconds,
		TotalClipsInSlot:     state.TotalClipsInSlot,
		ClipsShown:           state.ClipsShown,
		HasMoreClips:         state.HasMoreClips,
	}, nil
}

func (h Handler) QueueHealthHandler(ctx context.Context) (httptransport.QueueHealthResponse, error) {
	health, err := h.Queue.Health(ctx)
	if err != nil {
		return httptransport.QueueHealthResponse{}, err
	}
	resp := httptransport.QueueHealthResponse{
		Pending:      health.Pending,
		Processing:   health.Processing,
		DeadLettered: health.DeadLettered,
	}
	if !health.LastProcessedAt.IsZero() {
		last := health.LastProcessedAt
		resp.LastProcessedAt = &last
	}
	return resp, nil
}

func mapRemaining(remaining entities.RemainingVotes) httptransport.RemainingVotes {
	return httptransport.RemainingVotes{
		Standard: remaining.Standard,
		Super:    remaining.Super,
		Mega:     remaining.Mega,
	}
}
