package commands

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cliparena/contexts/tournament/voting-engine/adapters/memory"
	"cliparena/contexts/tournament/voting-engine/domain/entities"
	domainerrors "cliparena/contexts/tournament/voting-engine/domain/errors"
	"cliparena/contexts/tournament/voting-engine/ports"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	counter *memory.CounterStore
	queue   *memory.Queue
	votes   VoteUseCase
}

func newFixture(seed []entities.Vote) fixture {
	store := memory.NewStore(seed)
	store.SetNow(func() time.Time { return testNow })
	counter := memory.NewCounterStore(store)
	queue := memory.NewQueue(store.Now)

	endsAt := testNow.Add(time.Hour)
	store.SetSeason(ports.SeasonProjection{SeasonID: "season-1", Status: "active", TotalSlots: 3})
	store.SetSlot(ports.SlotProjection{
		SlotID:       "slot-1",
		SeasonID:     "season-1",
		Position:     1,
		Status:       "voting",
		VotingEndsAt: &endsAt,
	})
	store.SetClip(ports.ClipProjection{
		ClipID:       "clip-1",
		SeasonID:     "season-1",
		SlotPosition: 1,
		OwnerKey:     "owner-1",
		Status:       "active",
	})
	store.SetClip(ports.ClipProjection{
		ClipID:       "clip-2",
		SeasonID:     "season-1",
		SlotPosition: 1,
		OwnerKey:     "owner-2",
		Status:       "active",
	})

	return fixture{
		store:   store,
		counter: counter,
		queue:   queue,
		votes: VoteUseCase{
			Ledger:  store,
			Reader:  store,
			Counter: counter,
			Queue:   queue,
			Flags:   store,
			Clock:   store,
			IDGen:   store,
			Quotas: Quotas{
				DailyLimit:     200,
				StandardWeight: 1,
				SuperWeight:    5,
				MegaWeight:     10,
			},
		},
	}
}

func voter(key string) ports.VoterIdentity {
	return ports.VoterIdentity{VoterKey: key}
}

// drainQueue replays every queued event into the ledger the way the worker's
// consumer does: pop, apply, acknowledge.
func (f fixture) drainQueue(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		events, err := f.queue.Pop(ctx, 100)
		if err != nil {
			t.Fatalf("queue pop: %v", err)
		}
		if len(events) == 0 {
			return
		}
		for _, event := range events {
			if _, err := f.store.ApplyQueuedVote(ctx, event); err != nil {
				t.Fatalf("apply queued vote: %v", err)
			}
		}
		if err := f.queue.Acknowledge(ctx, events...); err != nil {
			t.Fatalf("queue ack: %v", err)
		}
	}
}

func TestCastVoteStandardAccepted(t *testing.T) {
	f := newFixture(nil)

	result, err := f.votes.CastVote(context.Background(), CastVoteCommand{
		Identity: voter("voter-1"),
		ClipID:   "clip-1",
	})
	if err != nil {
		t.Fatalf("expected standard vote to pass, got %v", err)
	}
	if result.Vote.Weight != 1 {
		t.Fatalf("expected weight 1, got %v", result.Vote.Weight)
	}
	if result.NewVoteCount != 1 || result.NewScore != 1 {
		t.Fatalf("expected counters 1/1, got %d/%v", result.NewVoteCount, result.NewScore)
	}
	if result.TotalVotesToday != 1 || result.Remaining.Standard != 199 {
		t.Fatalf("expected 1 vote today and 199 remaining, got %d/%d",
			result.TotalVotesToday, result.Remaining.Standard)
	}

	health, err := f.queue.Health(context.Background())
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	if health.Pending != 1 {
		t.Fatalf("expected one queued event, got %d", health.Pending)
	}
}

func TestCastVoteDuplicateRejected(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	identity := voter("voter-1")

	if _, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: identity, ClipID: "clip-1"}); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	_, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: identity, ClipID: "clip-1"})
	if !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
}

func TestCastVoteSelfVoteRejected(t *testing.T) {
	f := newFixture(nil)

	_, err := f.votes.CastVote(context.Background(), CastVoteCommand{
		Identity: voter("owner-1"),
		ClipID:   "clip-1",
	})
	if !errors.Is(err, domainerrors.ErrSelfVoteForbidden) {
		t.Fatalf("expected ErrSelfVoteForbidden, got %v", err)
	}
}

func TestCastVoteWrongSlotRejected(t *testing.T) {
	f := newFixture(nil)
	f.store.SetClip(ports.ClipProjection{
		ClipID:       "clip-next",
		SeasonID:     "season-1",
		SlotPosition: 2,
		OwnerKey:     "owner-3",
		Status:       "active",
	})

	before, _ := f.store.GetClipProjection("clip-next")
	_, err := f.votes.CastVote(context.Background(), CastVoteCommand{
		Identity: voter("voter-1"),
		ClipID:   "clip-next",
	})
	if !errors.Is(err, domainerrors.ErrWrongSlot) {
		t.Fatalf("expected ErrWrongSlot, got %v", err)
	}
	after, _ := f.store.GetClipProjection("clip-next")
	if after.VoteCount != before.VoteCount || after.WeightedScore != before.WeightedScore {
		t.Fatalf("wrong-slot vote mutated clip counters: %+v -> %+v", before, after)
	}
}

func TestCastVoteExpiredWindowRejected(t *testing.T) {
	f := newFixture(nil)
	past := testNow.Add(-time.Minute)
	f.store.SetSlot(ports.SlotProjection{
		SlotID:       "slot-1",
		SeasonID:     "season-1",
		Position:     1,
		Status:       "voting",
		VotingEndsAt: &past,
	})

	_, err := f.votes.CastVote(context.Background(), CastVoteCommand{
		Identity: voter("voter-1"),
		ClipID:   "clip-1",
	})
	if !errors.Is(err, domainerrors.ErrVotingExpired) {
		t.Fatalf("expected ErrVotingExpired, got %v", err)
	}
}

func TestCastVoteWaitingForClipsRejected(t *testing.T) {
	f := newFixture(nil)
	f.store.SetSlot(ports.SlotProjection{
		SlotID:   "slot-1",
		SeasonID: "season-1",
		Position: 1,
		Status:   "waiting_for_clips",
	})

	_, err := f.votes.CastVote(context.Background(), CastVoteCommand{
		Identity: voter("voter-1"),
		ClipID:   "clip-1",
	})
	if !errors.Is(err, domainerrors.ErrWaitingForClips) {
		t.Fatalf("expected ErrWaitingForClips, got %v", err)
	}
}

func TestCastVoteFrozenSlotRejected(t *testing.T) {
	f := newFixture(nil)
	if err := f.counter.FreezeSlot(context.Background(), 1); err != nil {
		t.Fatalf("freeze slot: %v", err)
	}

	_, err := f.votes.CastVote(context.Background(), CastVoteCommand{
		Identity: voter("voter-1"),
		ClipID:   "clip-1",
	})
	if !errors.Is(err, domainerrors.ErrVotingExpired) {
		t.Fatalf("expected ErrVotingExpired on frozen slot, got %v", err)
	}
}

func TestCastVoteDailyLimitBoundary(t *testing.T) {
	seed := make([]entities.Vote, 0, 199)
	for i := 0; i < 199; i++ {
		seed = append(seed, entities.Vote{
			VoteID:       fmt.Sprintf("seed-%d", i),
			ClipID:       fmt.Sprintf("seed-clip-%d", i),
			VoterKey:     "voter-1",
			VoteType:     entities.VoteTypeStandard,
			Weight:       1,
			SlotPosition: 1,
			CreatedAt:    testNow.Add(-time.Hour),
		})
	}
	f := newFixture(seed)
	ctx := context.Background()

	result, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: voter("voter-1"), ClipID: "clip-1"})
	if err != nil {
		t.Fatalf("vote 200 should pass, got %v", err)
	}
	if result.TotalVotesToday != 200 || result.Remaining.Standard != 0 {
		t.Fatalf("expected 200 total and 0 remaining, got %d/%d",
			result.TotalVotesToday, result.Remaining.Standard)
	}

	_, err = f.votes.CastVote(ctx, CastVoteCommand{Identity: voter("voter-1"), ClipID: "clip-2"})
	if !errors.Is(err, domainerrors.ErrDailyLimit) {
		t.Fatalf("vote 201 should hit the daily limit, got %v", err)
	}
}

func TestCastVoteSpecialCaps(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	identity := voter("voter-1")

	result, err := f.votes.CastVote(ctx, CastVoteCommand{
		Identity: identity,
		ClipID:   "clip-1",
		VoteType: entities.VoteTypeSuper,
	})
	if err != nil {
		t.Fatalf("first super vote: %v", err)
	}
	if result.Vote.Weight != 5 || result.Remaining.Super != 0 {
		t.Fatalf("expected weight 5 and no super left, got %v/%d",
			result.Vote.Weight, result.Remaining.Super)
	}

	_, err = f.votes.CastVote(ctx, CastVoteCommand{
		Identity: identity,
		ClipID:   "clip-2",
		VoteType: entities.VoteTypeSuper,
	})
	if !errors.Is(err, domainerrors.ErrSuperLimit) {
		t.Fatalf("expected ErrSuperLimit, got %v", err)
	}

	if _, err := f.votes.CastVote(ctx, CastVoteCommand{
		Identity: identity,
		ClipID:   "clip-2",
		VoteType: entities.VoteTypeMega,
	}); err != nil {
		t.Fatalf("first mega vote: %v", err)
	}

	f.store.SetClip(ports.ClipProjection{
		ClipID:       "clip-3",
		SeasonID:     "season-1",
		SlotPosition: 1,
		OwnerKey:     "owner-3",
		Status:       "active",
	})
	_, err = f.votes.CastVote(ctx, CastVoteCommand{
		Identity: identity,
		ClipID:   "clip-3",
		VoteType: entities.VoteTypeMega,
	})
	if !errors.Is(err, domainerrors.ErrMegaLimit) {
		t.Fatalf("expected ErrMegaLimit, got %v", err)
	}
}

func TestCastVoteBannedRejected(t *testing.T) {
	f := newFixture(nil)

	_, err := f.votes.CastVote(context.Background(), CastVoteCommand{
		Identity: ports.VoterIdentity{VoterKey: "voter-1", Banned: true},
		ClipID:   "clip-1",
	})
	if !errors.Is(err, domainerrors.ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned, got %v", err)
	}
}

func TestCastVoteAuthRequiredFlag(t *testing.T) {
	f := newFixture(nil)
	f.store.SetFlag("auth_required", true)
	ctx := context.Background()

	_, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: voter("voter-1"), ClipID: "clip-1"})
	if !errors.Is(err, domainerrors.ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired for anonymous voter, got %v", err)
	}

	if _, err := f.votes.CastVote(ctx, CastVoteCommand{
		Identity: ports.VoterIdentity{VoterKey: "voter-1", UserID: "user-1"},
		ClipID:   "clip-1",
	}); err != nil {
		t.Fatalf("authenticated voter should pass, got %v", err)
	}
}

func TestCastVoteAsyncFastPath(t *testing.T) {
	f := newFixture(nil)
	f.store.SetFlag("async_votes", true)
	ctx := context.Background()

	result, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: voter("voter-1"), ClipID: "clip-1"})
	if err != nil {
		t.Fatalf("async vote: %v", err)
	}
	if result.NewVoteCount != 1 || result.NewScore != 1 {
		t.Fatalf("expected overlaid counters 1/1, got %d/%v", result.NewVoteCount, result.NewScore)
	}

	// The ledger row appears only after the queue consumer applies the event.
	if _, found, err := f.store.GetVoteByIdentity(ctx, "voter-1", "clip-1"); err != nil || found {
		t.Fatalf("expected no ledger row before consumption, found=%v err=%v", found, err)
	}
	deltaVotes, deltaWeighted, ok, err := f.counter.CountAndScore(ctx, "clip-1")
	if err != nil || !ok || deltaVotes != 1 || deltaWeighted != 1 {
		t.Fatalf("expected fast-path delta 1/1, got %d/%v ok=%v err=%v", deltaVotes, deltaWeighted, ok, err)
	}
	health, _ := f.queue.Health(ctx)
	if health.Pending != 1 {
		t.Fatalf("expected queued event, got %d pending", health.Pending)
	}
}

func TestCastVoteAsyncDuplicateRejected(t *testing.T) {
	f := newFixture(nil)
	f.store.SetFlag("async_votes", true)
	ctx := context.Background()
	identity := voter("voter-1")

	if _, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: identity, ClipID: "clip-1"}); err != nil {
		t.Fatalf("first cast: %v", err)
	}
	// The first vote has not reached the ledger yet; its queue row alone
	// must block the second cast.
	_, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: identity, ClipID: "clip-1"})
	if !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted for in-flight duplicate, got %v", err)
	}

	f.drainQueue(t)
	count, err := f.store.CountVotesSince(ctx, "voter-1", testNow.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("count after drain: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one live vote after drain, got %d", count)
	}
}

func TestCastVoteAsyncDailyLimitCountsInFlight(t *testing.T) {
	f := newFixture(nil)
	f.store.SetFlag("async_votes", true)
	f.votes.Quotas.DailyLimit = 2
	f.store.SetClip(ports.ClipProjection{
		ClipID:       "clip-3",
		SeasonID:     "season-1",
		SlotPosition: 1,
		OwnerKey:     "owner-3",
		Status:       "active",
	})
	ctx := context.Background()
	identity := voter("voter-1")

	if _, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: identity, ClipID: "clip-1"}); err != nil {
		t.Fatalf("first cast: %v", err)
	}
	if _, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: identity, ClipID: "clip-2"}); err != nil {
		t.Fatalf("second cast: %v", err)
	}
	// Both votes are still on the queue; they must count toward the cap.
	_, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: identity, ClipID: "clip-3"})
	if !errors.Is(err, domainerrors.ErrDailyLimit) {
		t.Fatalf("expected ErrDailyLimit with in-flight votes, got %v", err)
	}
}

func TestCastVoteAsyncSpecialCapCountsInFlight(t *testing.T) {
	f := newFixture(nil)
	f.store.SetFlag("async_votes", true)
	ctx := context.Background()
	identity := voter("voter-1")

	result, err := f.votes.CastVote(ctx, CastVoteCommand{
		Identity: identity,
		ClipID:   "clip-1",
		VoteType: entities.VoteTypeSuper,
	})
	if err != nil {
		t.Fatalf("super cast: %v", err)
	}
	if result.Remaining.Super != 0 {
		t.Fatalf("in-flight super vote must consume the budget, got %d left", result.Remaining.Super)
	}

	_, err = f.votes.CastVote(ctx, CastVoteCommand{
		Identity: identity,
		ClipID:   "clip-2",
		VoteType: entities.VoteTypeSuper,
	})
	if !errors.Is(err, domainerrors.ErrSuperLimit) {
		t.Fatalf("expected ErrSuperLimit with an in-flight super vote, got %v", err)
	}
}

func TestCastVoteMultiVoteAccumulates(t *testing.T) {
	f := newFixture(nil)
	f.store.SetFlag("multi_vote", true)
	ctx := context.Background()
	identity := voter("voter-1")

	if _, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: identity, ClipID: "clip-1"}); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	result, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: identity, ClipID: "clip-1"})
	if err != nil {
		t.Fatalf("second vote should accumulate, got %v", err)
	}
	if result.NewScore != 2 {
		t.Fatalf("expected accumulated score 2, got %v", result.NewScore)
	}

	vote, found, err := f.store.GetVoteByIdentity(ctx, "voter-1", "clip-1")
	if err != nil || !found {
		t.Fatalf("expected a single vote row, found=%v err=%v", found, err)
	}
	if vote.Weight != 2 {
		t.Fatalf("expected vote row weight 2, got %v", vote.Weight)
	}
}

func TestCastVoteClipNotFound(t *testing.T) {
	f := newFixture(nil)

	_, err := f.votes.CastVote(context.Background(), CastVoteCommand{
		Identity: voter("voter-1"),
		ClipID:   "missing-clip",
	})
	if !errors.Is(err, domainerrors.ErrClipNotFound) {
		t.Fatalf("expected ErrClipNotFound, got %v", err)
	}
}

func TestCastVoteInvalidInput(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	if _, err := f.votes.CastVote(ctx, CastVoteCommand{Identity: voter("voter-1")}); !errors.Is(err, domainerrors.ErrInvalidVoteInput) {
		t.Fatalf("expected ErrInvalidVoteInput for empty clip, got %v", err)
	}
	if _, err := f.votes.CastVote(ctx, CastVoteCommand{
		Identity: voter("voter-1"),
		ClipID:   "clip-1",
		VoteType: entities.VoteType("ultra"),
	}); !errors.Is(err, domainerrors.ErrInvalidVoteInput) {
		t.Fatalf("expected ErrInvalidVoteInput for unknown vote type, got %v", err)
	}
}
