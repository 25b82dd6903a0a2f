package queries

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	application "cliparena/contexts/tournament/voting-engine/application"
	"cliparena/contexts/tournament/voting-engine/domain/entities"
	domainerrors "cliparena/contexts/tournament/voting-engine/domain/errors"
	"cliparena/contexts/tournament/voting-engine/ports"
)

type ClipState struct {
	ClipID        string
	Status        string
	VoteCount     int
	WeightedScore float64
	HypeScore     float64
}

// VotingState is the read-model snapshot served on GET /vote.
type VotingState struct {
	Clips                []ClipState
	TotalVotesToday      int
	Remaining            entities.RemainingVotes
	VotedClipIDs         []string
	CurrentSlot          int
	TotalSlots           int
	VotingStartedAt      *time.Time
	VotingEndsAt         *time.Time
	TimeRemainingSeconds int
	TotalClipsInSlot     int
	ClipsShown           int
	HasMoreClips         bool
}

// StateUseCase assembles the voting snapshot. When the fast path is active it
// overlays counter deltas so callers see burst traffic before reconciliation.
type StateUseCase struct {
	Ledger     ports.VoteLedger
	Reader     ports.TournamentReader
	Counter    ports.CounterStore
	Flags      ports.FlagProvider
	Clock      ports.Clock
	DailyLimit int
	PageSize   int
	Logger     *slog.Logger
}

func (uc StateUseCase) VotingState(ctx context.Context, identity ports.VoterIdentity) (VotingState, error) {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(identity.VoterKey) == "" {
		return VotingState{}, domainerrors.ErrInvalidVoteInput
	}
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}

	season, found, err := uc.Reader.GetActiveSeason(ctx)
	if err != nil {
		return VotingState{}, domainerrors.ErrStoreUnavailable
	}
	if !found {
		return VotingState{}, domainerrors.ErrNoActiveSlot
	}
	slot, found, err := uc.Reader.GetCurrentSlot(ctx, season.SeasonID)
	if err != nil {
		return VotingState{}, domainerrors.ErrStoreUnavailable
	}
	if !found {
		return VotingState{}, domainerrors.ErrNoActiveSlot
	}

	clips, err := uc.Reader.ListClipsBySlot(ctx, season.SeasonID, slot.Position)
	if err != nil {
		return VotingState{}, domainerrors.ErrStoreUnavailable
	}

	asyncVotes, err := uc.Flags.AsyncVotes(ctx)
	if err != nil {
		logger.Warn("async flag read failed, serving ledger counts",
			"event", "voting_state_flag_failed",
			"module", "tournament/voting-engine",
			"layer", "application",
			"error", err.Error(),
		)
		asyncVotes = false
	}

	states := make([]ClipState, 0, len(clips))
	for _, clip := range clips {
		state := ClipState{
			ClipID:        clip.ClipID,
			Status:        clip.Status,
			VoteCount:     clip.VoteCount,
			WeightedScore: clip.WeightedScore,
			HypeScore:     clip.HypeScore,
		}
		if asyncVotes {
			if deltaVotes, deltaWeighted, ok, cerr := uc.Counter.CountAndScore(ctx, clip.ClipID); cerr == nil && ok {
				state.VoteCount += deltaVotes
				state.WeightedScore += deltaWeighted
			}
		}
		states = append(states, state)
	}
	sort.SliceStable(states, func(i, j int) bool {
		if states[i].WeightedScore != states[j].WeightedScore {
			return states[i].WeightedScore > states[j].WeightedScore
		}
		return states[i].VoteCount > states[j].VoteCount
	})

	totalClips := len(states)
	shown := totalClips
	if uc.PageSize > 0 && shown > uc.PageSize {
		shown = uc.PageSize
		states = states[:shown]
	}

	votesToday, err := uc.Ledger.CountVotesSince(ctx, identity.VoterKey, now.Add(-24*time.Hour))
	if err != nil {
		return VotingState{}, domainerrors.ErrStoreUnavailable
	}
	votedClipIDs, err := uc.Ledger.ListVoterClipIDs(ctx, identity.VoterKey, slot.Position)
	if err != nil {
		return VotingState{}, domainerrors.ErrStoreUnavailable
	}
	superUsed, err := uc.Ledger.CountTypeForSlot(ctx, identity.VoterKey, slot.Position, entities.VoteTypeSuper)
	if err != nil {
		return VotingState{}, domainerrors.ErrStoreUnavailable
	}
	megaUsed, err := uc.Ledger.CountTypeForSlot(ctx, identity.VoterKey, slot.Position, entities.VoteTypeMega)
	if err != nil {
		return VotingState{}, domainerrors.ErrStoreUnavailable
	}

	remaining := entities.RemainingVotes{
		Standard: maxInt(uc.DailyLimit-votesToday, 0),
		Super:    maxInt(1-superUsed, 0),
		Mega:     maxInt(1-megaUsed, 0),
	}

	timeRemaining := 0
	if slot.VotingEndsAt != nil {
		if secs := int(slot.VotingEndsAt.Sub(now).Seconds()); secs > 0 {
			timeRemaining = secs
		}
	}

	return VotingState{
		Clips:                states,
		TotalVotesToday:      votesToday,
		Remaining:            remaining,
		VotedClipIDs:         votedClipIDs,
		CurrentSlot:          slot.Position,
		TotalSlots:           season.TotalSlots,
		VotingStartedAt:      slot.VotingStartedAt,
		VotingEndsAt:         slot.VotingEndsAt,
		TimeRemainingSeconds: timeRemaining,
		TotalClipsInSlot:     totalClips,
		ClipsShown:           shown,
		HasMoreClips:         shown < totalClips,
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
