package queries

import (
	"context"
	"errors"
	"testing"
	"time"

	"cliparena/contexts/tournament/voting-engine/adapters/memory"
	"cliparena/contexts/tournament/voting-engine/domain/entities"
	domainerrors "cliparena/contexts/tournament/voting-engine/domain/errors"
	"cliparena/contexts/tournament/voting-engine/ports"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newFixture(seed []entities.Vote) (*memory.Store, *memory.CounterStore, StateUseCase) {
	store := memory.NewStore(seed)
	store.SetNow(func() time.Time { return testNow })
	counter := memory.NewCounterStore(store)

	endsAt := testNow.Add(time.Hour)
	startedAt := testNow.Add(-time.Hour)
	store.SetSeason(ports.SeasonProjection{SeasonID: "season-1", Status: "active", TotalSlots: 3})
	store.SetSlot(ports.SlotProjection{
		SlotID:          "slot-1",
		SeasonID:        "season-1",
		Position:        1,
		Status:          "voting",
		VotingStartedAt: &startedAt,
		VotingEndsAt:    &endsAt,
	})
	store.SetClip(ports.ClipProjection{
		ClipID: "clip-1", SeasonID: "season-1", SlotPosition: 1, OwnerKey: "owner-1",
		Status: "active", VoteCount: 3, WeightedScore: 10,
	})
	store.SetClip(ports.ClipProjection{
		ClipID: "clip-2", SeasonID: "season-1", SlotPosition: 1, OwnerKey: "owner-2",
		Status: "active", VoteCount: 5, WeightedScore: 10,
	})
	store.SetClip(ports.ClipProjection{
		ClipID: "clip-3", SeasonID: "season-1", SlotPosition: 1, OwnerKey: "owner-3",
		Status: "active", VoteCount: 9, WeightedScore: 4,
	})

	return store, counter, StateUseCase{
		Ledger:     store,
		Reader:     store,
		Counter:    counter,
		Flags:      store,
		Clock:      store,
		DailyLimit: 200,
		PageSize:   50,
	}
}

func TestVotingStateRanksAndReportsRemaining(t *testing.T) {
	_, _, uc := newFixture([]entities.Vote{
		{
			VoteID: "v-1", ClipID: "clip-2", VoterKey: "voter-1",
			VoteType: entities.VoteTypeStandard, Weight: 1, SlotPosition: 1,
			CreatedAt: testNow.Add(-time.Hour),
		},
		{
			VoteID: "v-2", ClipID: "clip-1", VoterKey: "voter-1",
			VoteType: entities.VoteTypeSuper, Weight: 5, SlotPosition: 1,
			CreatedAt: testNow.Add(-30 * time.Minute),
		},
	})

	state, err := uc.VotingState(context.Background(), ports.VoterIdentity{VoterKey: "voter-1"})
	if err != nil {
		t.Fatalf("expected state to load, got %v", err)
	}

	if len(state.Clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(state.Clips))
	}
	// Equal scores break ties on vote count; clip-3's raw votes do not help it.
	order := []string{state.Clips[0].ClipID, state.Clips[1].ClipID, state.Clips[2].ClipID}
	if order[0] != "clip-2" || order[1] != "clip-1" || order[2] != "clip-3" {
		t.Fatalf("unexpected ranking %v", order)
	}

	if state.TotalVotesToday != 2 {
		t.Fatalf("expected 2 votes today, got %d", state.TotalVotesToday)
	}
	if state.Remaining.Standard != 198 || state.Remaining.Super != 0 || state.Remaining.Mega != 1 {
		t.Fatalf("unexpected remaining %+v", state.Remaining)
	}
	if len(state.VotedClipIDs) != 2 {
		t.Fatalf("expected 2 voted clips, got %v", state.VotedClipIDs)
	}
	if state.CurrentSlot != 1 || state.TotalSlots != 3 {
		t.Fatalf("unexpected slot info %d/%d", state.CurrentSlot, state.TotalSlots)
	}
	if state.TimeRemainingSeconds != 3600 {
		t.Fatalf("expected 3600s remaining, got %d", state.TimeRemainingSeconds)
	}
}

func TestVotingStatePaginatesClips(t *testing.T) {
	_, _, uc := newFixture(nil)
	uc.PageSize = 2

	state, err := uc.VotingState(context.Background(), ports.VoterIdentity{VoterKey: "voter-1"})
	if err != nil {
		t.Fatalf("expected state to load, got %v", err)
	}
	if state.TotalClipsInSlot != 3 || state.ClipsShown != 2 || !state.HasMoreClips {
		t.Fatalf("unexpected pagination %+v", state)
	}
	if len(state.Clips) != 2 || state.Clips[0].ClipID != "clip-2" {
		t.Fatalf("expected top page to start at clip-2, got %+v", state.Clips)
	}
}

func TestVotingStateOverlaysFastPathDeltas(t *testing.T) {
	store, counter, uc := newFixture(nil)
	store.SetFlag("async_votes", true)
	if err := counter.Increment(context.Background(), "clip-3", "v-burst", 10); err != nil {
		t.Fatalf("expected increment to pass, got %v", err)
	}

	state, err := uc.VotingState(context.Background(), ports.VoterIdentity{VoterKey: "voter-1"})
	if err != nil {
		t.Fatalf("expected state to load, got %v", err)
	}
	// The un-synced delta lifts clip-3 to the top of the ranking.
	if state.Clips[0].ClipID != "clip-3" {
		t.Fatalf("expected clip-3 promoted by overlay, got %+v", state.Clips)
	}
	if state.Clips[0].VoteCount != 10 || state.Clips[0].WeightedScore != 14 {
		t.Fatalf("expected overlaid counts 10/14, got %+v", state.Clips[0])
	}
	// The persisted projection itself stays untouched until reconciliation.
	if clip, _ := store.GetClipProjection("clip-3"); clip.VoteCount != 9 || clip.WeightedScore != 4 {
		t.Fatalf("expected projection unchanged, got %+v", clip)
	}
}

func TestVotingStateRequiresIdentity(t *testing.T) {
	_, _, uc := newFixture(nil)

	if _, err := uc.VotingState(context.Background(), ports.VoterIdentity{}); !errors.Is(err, domainerrors.ErrInvalidVoteInput) {
		t.Fatalf("expected ErrInvalidVoteInput, got %v", err)
	}
}

func TestVotingStateWithoutActiveSlot(t *testing.T) {
	store := memory.NewStore(nil)
	store.SetNow(func() time.Time { return testNow })
	store.SetSeason(ports.SeasonProjection{SeasonID: "season-1", Status: "active", TotalSlots: 3})
	uc := StateUseCase{
		Ledger:     store,
		Reader:     store,
		Counter:    memory.NewCounterStore(store),
		Flags:      store,
		Clock:      store,
		DailyLimit: 200,
		PageSize:   50,
	}

	if _, err := uc.VotingState(context.Background(), ports.VoterIdentity{VoterKey: "voter-1"}); !errors.Is(err, domainerrors.ErrNoActiveSlot) {
		t.Fatalf("expected ErrNoActiveSlot, got %v", err)
	}
}
