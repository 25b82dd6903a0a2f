package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "cliparena/contexts/tournament/voting-engine/application"
	"cliparena/contexts/tournament/voting-engine/domain/entities"
	domainerrors "cliparena/contexts/tournament/voting-engine/domain/errors"
	"cliparena/contexts/tournament/voting-engine/ports"
	sharedevents "cliparena/internal/shared/events"
)

// Quotas is the vote budget and weighting policy applied by the admission gate.
type Quotas struct {
	DailyLimit     int
	StandardWeight float64
	SuperWeight    float64
	MegaWeight     float64
}

func (q Quotas) WeightFor(voteType entities.VoteType) float64 {
	switch voteType {
	case entities.VoteTypeSuper:
		return q.SuperWeight
	case entities.VoteTypeMega:
		return q.MegaWeight
	default:
		return q.StandardWeight
	}
}

// CastVoteCommand is the write-model input for vote admission.
type CastVoteCommand struct {
	Identity ports.VoterIdentity
	ClipID   string
	VoteType entities.VoteType
}

type CastVoteResult struct {
	Vote            entities.Vote
	NewScore        float64
	NewVoteCount    int
	TotalVotesToday int
	Remaining       entities.RemainingVotes
}

// VoteUseCase is the vote admission gate plus ledger/fast-path orchestration.
// Every datastore failure during a security check rejects the vote; a check
// that cannot be verified is never treated as passed.
type VoteUseCase struct {
	Ledger    ports.VoteLedger
	Reader    ports.TournamentReader
	Counter   ports.CounterStore
	Queue     ports.VoteQueue
	Flags     ports.FlagProvider
	Publisher ports.EventPublisher
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Quotas    Quotas
	Logger    *slog.Logger
}

// CastVote validates the request against the admission rules in order, then
// commits through the atomic ledger (sync mode) or the fast-path counter plus
// event queue (async mode). The ledger write is the commit point; there is no
// mid-vote cancellation, only the symmetric revoke.
func (uc VoteUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	clipID := strings.TrimSpace(cmd.ClipID)
	voteType := cmd.VoteType
	if voteType == "" {
		voteType = entities.VoteTypeStandard
	}
	if clipID == "" || !voteType.Valid() || strings.TrimSpace(cmd.Identity.VoterKey) == "" {
		return CastVoteResult{}, domainerrors.ErrInvalidVoteInput
	}
	if cmd.Identity.Banned {
		logger.Warn("vote rejected for banned voter",
			"event", "voting_cast_banned",
			"module", "tournament/voting-engine",
			"layer", "application",
			"voter_key", cmd.Identity.VoterKey,
		)
		return CastVoteResult{}, domainerrors.ErrUserBanned
	}

	authRequired, err := uc.Flags.AuthRequired(ctx)
	if err != nil {
		return CastVoteResult{}, uc.failClosed(logger, "auth_required flag", err)
	}
	if authRequired && strings.TrimSpace(cmd.Identity.UserID) == "" {
		return CastVoteResult{}, domainerrors.ErrAuthRequired
	}

	multiVote, err := uc.Flags.MultiVote(ctx)
	if err != nil {
		return CastVoteResult{}, uc.failClosed(logger, "multi_vote flag", err)
	}

	asyncVotes, err := uc.Flags.AsyncVotes(ctx)
	if err != nil {
		return CastVoteResult{}, uc.failClosed(logger, "async_votes flag", err)
	}

	_, hasExisting, err := uc.Ledger.GetVoteByIdentity(ctx, cmd.Identity.VoterKey, clipID)
	if err != nil {
		return CastVoteResult{}, uc.failClosed(logger, "duplicate check", err)
	}
	if asyncVotes && !hasExisting {
		// A vote travelling the queue has not reached the ledger yet; its
		// queue row is the admission marker until the consumer applies it.
		_, pendingFound, perr := uc.Queue.PendingCast(ctx, cmd.Identity.VoterKey, clipID)
		if perr != nil {
			return CastVoteResult{}, uc.failClosed(logger, "pending duplicate check", perr)
		}
		hasExisting = pendingFound
	}
	if hasExisting && !multiVote {
		return CastVoteResult{}, domainerrors.ErrAlreadyVoted
	}

	clip, err := uc.Reader.GetClip(ctx, clipID)
	if err != nil {
		if err == domainerrors.ErrClipNotFound {
			return CastVoteResult{}, err
		}
		return CastVoteResult{}, uc.failClosed(logger, "clip lookup", err)
	}
	if clip.Status != "active" {
		return CastVoteResult{}, domainerrors.ErrInvalidClipStatus
	}
	if uc.isSelfVote(cmd.Identity, clip) {
		return CastVoteResult{}, domainerrors.ErrSelfVoteForbidden
	}

	now := uc.now()
	slot, err := uc.currentVotingSlot(ctx, clip, now)
	if err != nil {
		return CastVoteResult{}, err
	}
	if frozen, ferr := uc.Counter.SlotFrozen(ctx, slot.Position); ferr != nil {
		return CastVoteResult{}, uc.failClosed(logger, "freeze check", ferr)
	} else if frozen {
		return CastVoteResult{}, domainerrors.ErrVotingExpired
	}

	votesToday, err := uc.Ledger.CountVotesSince(ctx, cmd.Identity.VoterKey, now.Add(-24*time.Hour))
	if err != nil {
		return CastVoteResult{}, uc.failClosed(logger, "daily quota", err)
	}
	if asyncVotes {
		inFlight, perr := uc.Queue.CountPendingCasts(ctx, cmd.Identity.VoterKey, now.Add(-24*time.Hour))
		if perr != nil {
			return CastVoteResult{}, uc.failClosed(logger, "daily quota", perr)
		}
		votesToday += inFlight
	}
	if votesToday >= uc.Quotas.DailyLimit {
		return CastVoteResult{}, domainerrors.ErrDailyLimit
	}
	if voteType.Special() {
		used, serr := uc.Ledger.CountTypeForSlot(ctx, cmd.Identity.VoterKey, slot.Position, voteType)
		if serr != nil {
			return CastVoteResult{}, uc.failClosed(logger, "special quota", serr)
		}
		if asyncVotes {
			pendingUsed, perr := uc.Queue.CountPendingTypeForSlot(ctx, cmd.Identity.VoterKey, slot.Position, voteType)
			if perr != nil {
				return CastVoteResult{}, uc.failClosed(logger, "special quota", perr)
			}
			used += pendingUsed
		}
		if used >= 1 {
			if voteType == entities.VoteTypeMega {
				return CastVoteResult{}, domainerrors.ErrMegaLimit
			}
			return CastVoteResult{}, domainerrors.ErrSuperLimit
		}
	}

	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CastVoteResult{}, uc.failClosed(logger, "id generation", err)
	}
	vote := entities.Vote{
		VoteID:       voteID,
		ClipID:       clipID,
		VoterKey:     strings.TrimSpace(cmd.Identity.VoterKey),
		UserID:       strings.TrimSpace(cmd.Identity.UserID),
		VoteType:     voteType,
		Weight:       uc.Quotas.WeightFor(voteType),
		SlotPosition: slot.Position,
		CreatedAt:    now,
	}

	accumulate := hasExisting && multiVote
	newCount := clip.VoteCount
	newScore := clip.WeightedScore
	if asyncVotes {
		if err := uc.Counter.Increment(ctx, clipID, vote.VoteID, vote.Weight); err != nil {
			return CastVoteResult{}, uc.failClosed(logger, "fast-path increment", err)
		}
		deltaVotes, deltaWeighted, _, cerr := uc.Counter.CountAndScore(ctx, clipID)
		if cerr == nil {
			newCount += deltaVotes
			newScore += deltaWeighted
		}
	} else {
		var result ports.InsertVoteResult
		if accumulate {
			result, err = uc.Ledger.AccumulateVote(ctx, cmd.Identity.VoterKey, clipID, voteType, vote.Weight)
		} else {
			result, err = uc.Ledger.InsertVote(ctx, vote)
		}
		if err != nil {
			if err == domainerrors.ErrAlreadyVoted || err == domainerrors.ErrSelfVoteForbidden {
				return CastVoteResult{}, err
			}
			return CastVoteResult{}, uc.failClosed(logger, "ledger insert", err)
		}
		vote.VoteID = result.VoteID
		newCount = result.NewVoteCount
		newScore = result.NewWeightedScore
	}

	event := queueEventFromVote(vote, entities.DirectionCast, now)
	if accumulate {
		event.Metadata = map[string]string{"accumulate": "true"}
	}
	if err := uc.Queue.Push(ctx, event); err != nil {
		// The commit already happened; delivery is at-least-once from here,
		// so a push failure is logged and surfaced, never rolled back.
		logger.Error("vote event enqueue failed",
			"event", "voting_cast_enqueue_failed",
			"module", "tournament/voting-engine",
			"layer", "application",
			"vote_id", vote.VoteID,
			"clip_id", clipID,
			"error", err.Error(),
		)
		if asyncVotes {
			// Void the fast-path delta so a vote that never reached the
			// queue cannot sync into the durable counters.
			if derr := uc.Counter.Decrement(ctx, clipID, vote.VoteID, vote.Weight); derr != nil {
				logger.Error("fast-path compensation failed",
					"event", "voting_cast_compensation_failed",
					"module", "tournament/voting-engine",
					"layer", "application",
					"vote_id", vote.VoteID,
					"clip_id", clipID,
					"error", derr.Error(),
				)
			}
			return CastVoteResult{}, domainerrors.ErrStoreUnavailable
		}
	}
	uc.broadcast(ctx, logger, sharedevents.TypeVoteCast, vote, newScore)

	totalToday := votesToday + 1
	logger.Info("vote cast",
		"event", "voting_cast_accepted",
		"module", "tournament/voting-engine",
		"layer", "application",
		"vote_id", vote.VoteID,
		"clip_id", clipID,
		"vote_type", string(voteType),
		"weight", vote.Weight,
		"slot_position", slot.Position,
		"async", asyncVotes,
	)
	remaining, err := uc.remainingVotes(ctx, cmd.Identity.VoterKey, slot.Position, totalToday, asyncVotes)
	if err != nil {
		return CastVoteResult{}, uc.failClosed(logger, "remaining quota", err)
	}
	return CastVoteResult{
		Vote:            vote,
		NewScore:        newScore,
		NewVoteCount:    newCount,
		TotalVotesToday: totalToday,
		Remaining:       remaining,
	}, nil
}

func (uc VoteUseCase) isSelfVote(identity ports.VoterIdentity, clip ports.ClipProjection) bool {
	if clip.OwnerKey != "" && clip.OwnerKey == identity.VoterKey {
		return true
	}
	return identity.UserID != "" && clip.OwnerUserID == identity.UserID
}

// currentVotingSlot checks the slot-side admission rules: an active season
// with a current slot in voting status whose window has not elapsed, and the
// clip positioned in that slot.
func (uc VoteUseCase) currentVotingSlot(
	ctx context.Context,
	clip ports.ClipProjection,
	now time.Time,
) (ports.SlotProjection, error) {
	logger := application.ResolveLogger(uc.Logger)
	season, found, err := uc.Reader.GetActiveSeason(ctx)
	if err != nil {
		return ports.SlotProjection{}, uc.failClosed(logger, "season lookup", err)
	}
	if !found {
		return ports.SlotProjection{}, domainerrors.ErrNoActiveSlot
	}
	slot, found, err := uc.Reader.GetCurrentSlot(ctx, season.SeasonID)
	if err != nil {
		return ports.SlotProjection{}, uc.failClosed(logger, "slot lookup", err)
	}
	if !found {
		return ports.SlotProjection{}, domainerrors.ErrNoActiveSlot
	}
	if slot.Status == "waiting_for_clips" {
		return ports.SlotProjection{}, domainerrors.ErrWaitingForClips
	}
	if slot.Status != "voting" {
		return ports.SlotProjection{}, domainerrors.ErrNoActiveSlot
	}
	if clip.SlotPosition != slot.Position {
		return ports.SlotProjection{}, domainerrors.ErrWrongSlot
	}
	if slot.VotingEndsAt != nil && !slot.VotingEndsAt.After(now) {
		return ports.SlotProjection{}, domainerrors.ErrVotingExpired
	}
	return slot, nil
}

func (uc VoteUseCase) remainingVotes(
	ctx context.Context,
	voterKey string,
	slotPosition int,
	totalToday int,
	asyncVotes bool,
) (entities.RemainingVotes, error) {
	standard := uc.Quotas.DailyLimit - totalToday
	if standard < 0 {
		standard = 0
	}
	superUsed, err := uc.Ledger.CountTypeForSlot(ctx, voterKey, slotPosition, entities.VoteTypeSuper)
	if err != nil {
		return entities.RemainingVotes{}, err
	}
	megaUsed, err := uc.Ledger.CountTypeForSlot(ctx, voterKey, slotPosition, entities.VoteTypeMega)
	if err != nil {
		return entities.RemainingVotes{}, err
	}
	if asyncVotes {
		pendingSuper, err := uc.Queue.CountPendingTypeForSlot(ctx, voterKey, slotPosition, entities.VoteTypeSuper)
		if err != nil {
			return entities.RemainingVotes{}, err
		}
		pendingMega, err := uc.Queue.CountPendingTypeForSlot(ctx, voterKey, slotPosition, entities.VoteTypeMega)
		if err != nil {
			return entities.RemainingVotes{}, err
		}
		superUsed += pendingSuper
		megaUsed += pendingMega
	}
	remaining := entities.RemainingVotes{Standard: standard, Super: 1 - superUsed, Mega: 1 - megaUsed}
	if remaining.Super < 0 {
		remaining.Super = 0
	}
	if remaining.Mega < 0 {
		remaining.Mega = 0
	}
	return remaining, nil
}

func (uc VoteUseCase) broadcast(
	ctx context.Context,
	logger *slog.Logger,
	eventType string,
	vote entities.Vote,
	newScore float64,
) {
	if uc.Publisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"vote_id":       vote.VoteID,
		"clip_id":       vote.ClipID,
		"vote_type":     string(vote.VoteType),
		"slot_position": vote.SlotPosition,
		"new_score":     newScore,
	})
	if err != nil {
		return
	}
	envelope := ports.EventEnvelope{
		EventID:       vote.VoteID,
		EventType:     eventType,
		OccurredAt:    vote.CreatedAt.UTC(),
		SourceService: sharedevents.SourceVotingEngine,
		SchemaVersion: sharedevents.SchemaVersion,
		PartitionKey:  vote.ClipID,
		Data:          payload,
	}
	if err := uc.Publisher.Publish(ctx, eventType, envelope); err != nil {
		logger.Warn("vote broadcast failed",
			"event", "voting_broadcast_failed",
			"module", "tournament/voting-engine",
			"layer", "application",
			"vote_id", vote.VoteID,
			"topic", eventType,
			"error", err.Error(),
		)
	}
}

func (uc VoteUseCase) failClosed(logger *slog.Logger, check string, err error) error {
	logger.Error("vote admission check failed closed",
		"event", "voting_admission_check_failed",
		"module", "tournament/voting-engine",
		"layer", "application",
		"check", check,
		"error", err.Error(),
	)
	return domainerrors.ErrStoreUnavailable
}

func (uc VoteUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func voteFromQueueEvent(event entities.QueueEvent) entities.Vote {
	return entities.Vote{
		VoteID:       event.VoteID,
		ClipID:       event.ClipID,
		VoterKey:     event.VoterKey,
		UserID:       event.UserID,
		VoteType:     event.VoteType,
		Weight:       event.Weight,
		SlotPosition: event.SlotPosition,
		CreatedAt:    event.OccurredAt,
	}
}

func queueEventFromVote(vote entities.Vote, direction entities.EventDirection, at time.Time) entities.QueueEvent {
	return entities.QueueEvent{
		EventID:      vote.VoteID + ":" + string(direction),
		VoteID:       vote.VoteID,
		ClipID:       vote.ClipID,
		VoterKey:     vote.VoterKey,
		UserID:       vote.UserID,
		VoteType:     vote.VoteType,
		Weight:       vote.Weight,
		SlotPosition: vote.SlotPosition,
		Direction:    direction,
		OccurredAt:   at.UTC(),
	}
}
