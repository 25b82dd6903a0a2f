package commands

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cliparena/contexts/tournament/progression-service/adapters/memory"
	"cliparena/contexts/tournament/progression-service/domain/entities"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newFixture() (*memory.Store, ProgressUseCase) {
	store := memory.NewStore()
	store.SetNow(testNow)
	uc := ProgressUseCase{
		Repo:           store,
		Lock:           store,
		Counter:        store,
		FastPath:       store,
		Clock:          store,
		LockTTL:        5 * time.Minute,
		FreezeBuffer:   120 * time.Second,
		VotingDuration: 24 * time.Hour,
	}
	return store, uc
}

func seedSeason(store *memory.Store, totalSlots int) {
	store.SetSeason(entities.Season{
		SeasonID:   "season-1",
		Status:     entities.SeasonStatusActive,
		TotalSlots: totalSlots,
	})
}

func expiredSlot(position int) entities.Slot {
	started := testNow.Add(-24 * time.Hour)
	ended := testNow.Add(-time.Minute)
	return entities.Slot{
		SlotID:          fmt.Sprintf("slot-%d", position),
		SeasonID:        "season-1",
		Position:        position,
		Status:          entities.SlotStatusVoting,
		VotingStartedAt: &started,
		VotingEndsAt:    &ended,
	}
}

func clip(id string, position int, score float64, votes int) entities.Clip {
	return entities.Clip{
		ClipID:        id,
		SeasonID:      "season-1",
		SlotPosition:  position,
		Status:        entities.ClipStatusActive,
		VoteCount:     votes,
		WeightedScore: score,
	}
}

func TestProgressLocksWinnerAndAdvances(t *testing.T) {
	store, uc := newFixture()
	seedSeason(store, 3)
	store.SetSlot(expiredSlot(1))
	store.SetSlot(entities.Slot{SlotID: "slot-2", SeasonID: "season-1", Position: 2, Status: entities.SlotStatusUpcoming})
	// A and B tie on score; A wins on vote count. C's raw votes do not matter.
	store.SetClip(clip("clip-a", 1, 10, 12))
	store.SetClip(clip("clip-b", 1, 10, 9))
	store.SetClip(clip("clip-c", 1, 5, 20))
	store.SetClip(clip("clip-d", 2, 0, 0))
	if err := store.FreezeSlot(context.Background(), 1); err != nil {
		t.Fatalf("freeze slot: %v", err)
	}

	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to pass, got %v", err)
	}
	if !report.OK || report.Skipped || report.Processed != 1 {
		t.Fatalf("expected one processed slot, got %+v", report)
	}
	result := report.Results[0]
	if result.Outcome != entities.OutcomeAdvanced {
		t.Fatalf("expected advanced outcome, got %s (%s)", result.Outcome, result.Error)
	}
	if result.WinnerClipID != "clip-a" || result.Eliminated != 2 {
		t.Fatalf("expected clip-a to win with 2 eliminated, got %+v", result)
	}

	slot, _ := store.Slot("slot-1")
	if slot.Status != entities.SlotStatusLocked || slot.WinnerClipID != "clip-a" {
		t.Fatalf("expected slot-1 locked with winner clip-a, got %+v", slot)
	}
	if c, _ := store.Clip("clip-a"); c.Status != entities.ClipStatusLocked {
		t.Fatalf("expected winner locked, got %s", c.Status)
	}
	for _, id := range []string{"clip-b", "clip-c"} {
		if c, _ := store.Clip(id); c.Status != entities.ClipStatusEliminated {
			t.Fatalf("expected %s eliminated, got %s", id, c.Status)
		}
	}
	cleared := store.ClearedClips()
	if len(cleared) != 1 || len(cleared[0]) != 3 {
		t.Fatalf("expected one clear covering all slot clips, got %v", cleared)
	}
	if frozen := store.FrozenSlots(); len(frozen) != 0 {
		t.Fatalf("expected locked slot to release its freeze, got %v", frozen)
	}

	next, _ := store.Slot("slot-2")
	if next.Status != entities.SlotStatusVoting {
		t.Fatalf("expected next slot voting, got %s", next.Status)
	}
	if next.VotingEndsAt == nil || !next.VotingEndsAt.Equal(testNow.Add(24*time.Hour)) {
		t.Fatalf("expected next slot to end at now+24h, got %v", next.VotingEndsAt)
	}
}

func TestProgressEmptySlotWaitsForClips(t *testing.T) {
	store, uc := newFixture()
	seedSeason(store, 3)
	store.SetSlot(expiredSlot(1))

	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to pass, got %v", err)
	}
	if report.Processed != 1 || report.Results[0].Outcome != entities.OutcomeWaitingForClips {
		t.Fatalf("expected waiting_for_clips, got %+v", report)
	}

	slot, _ := store.Slot("slot-1")
	if slot.Status != entities.SlotStatusWaitingForClips {
		t.Fatalf("expected slot waiting_for_clips, got %s", slot.Status)
	}
	if slot.VotingEndsAt != nil || slot.VotingStartedAt != nil {
		t.Fatalf("expected voting window reset, got %+v", slot)
	}
	if season, _ := store.Season("season-1"); season.Status != entities.SeasonStatusActive {
		t.Fatalf("expected season untouched, got %s", season.Status)
	}
}

func TestProgressLastSlotFinishesSeason(t *testing.T) {
	store, uc := newFixture()
	seedSeason(store, 1)
	store.SetSlot(expiredSlot(1))
	store.SetClip(clip("clip-a", 1, 3, 3))
	// A stray submission that never made it into a slot.
	store.SetClip(clip("clip-x", 7, 0, 0))

	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to pass, got %v", err)
	}
	if report.Results[0].Outcome != entities.OutcomeFinished {
		t.Fatalf("expected finished outcome, got %+v", report.Results[0])
	}
	if season, _ := store.Season("season-1"); season.Status != entities.SeasonStatusFinished {
		t.Fatalf("expected season finished, got %s", season.Status)
	}
	if c, _ := store.Clip("clip-a"); c.Status != entities.ClipStatusLocked {
		t.Fatalf("expected winner locked, got %s", c.Status)
	}
	if c, _ := store.Clip("clip-x"); c.Status != entities.ClipStatusEliminated {
		t.Fatalf("expected leftover clip eliminated, got %s", c.Status)
	}
}

func TestProgressNextSlotWithoutClipsWaits(t *testing.T) {
	store, uc := newFixture()
	seedSeason(store, 3)
	store.SetSlot(expiredSlot(1))
	store.SetSlot(entities.Slot{SlotID: "slot-2", SeasonID: "season-1", Position: 2, Status: entities.SlotStatusUpcoming})
	store.SetClip(clip("clip-a", 1, 3, 3))

	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to pass, got %v", err)
	}
	if report.Results[0].Outcome != entities.OutcomeLockedWaiting {
		t.Fatalf("expected locked_waiting, got %+v", report.Results[0])
	}
	if next, _ := store.Slot("slot-2"); next.Status != entities.SlotStatusWaitingForClips {
		t.Fatalf("expected next slot waiting_for_clips, got %s", next.Status)
	}
}

func TestProgressLockContentionSkips(t *testing.T) {
	store, uc := newFixture()
	seedSeason(store, 1)
	store.SetSlot(expiredSlot(1))
	store.SetClip(clip("clip-a", 1, 3, 3))

	if _, acquired, err := store.Acquire(context.Background(), "slot_progression", 5*time.Minute); err != nil || !acquired {
		t.Fatalf("expected to pre-acquire the lock, got acquired=%v err=%v", acquired, err)
	}

	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("expected contended run to pass, got %v", err)
	}
	if !report.Skipped || !report.OK || report.Processed != 0 {
		t.Fatalf("expected skipped no-op, got %+v", report)
	}
	if slot, _ := store.Slot("slot-1"); slot.Status != entities.SlotStatusVoting {
		t.Fatalf("expected slot untouched under contention, got %s", slot.Status)
	}

	// The stale lease is taken over once it expires.
	store.SetNow(testNow.Add(10 * time.Minute))
	report, err = uc.Run(context.Background())
	if err != nil {
		t.Fatalf("expected takeover run to pass, got %v", err)
	}
	if report.Skipped || report.Processed != 1 {
		t.Fatalf("expected expired lease takeover, got %+v", report)
	}
}

func TestProgressFreezesImminentSlots(t *testing.T) {
	store, uc := newFixture()
	seedSeason(store, 3)
	endsSoon := testNow.Add(60 * time.Second)
	started := testNow.Add(-time.Hour)
	store.SetSlot(entities.Slot{
		SlotID:          "slot-1",
		SeasonID:        "season-1",
		Position:        1,
		Status:          entities.SlotStatusVoting,
		VotingStartedAt: &started,
		VotingEndsAt:    &endsSoon,
	})

	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to pass, got %v", err)
	}
	if report.Processed != 0 {
		t.Fatalf("expected no expired slots, got %+v", report)
	}
	frozen := store.FrozenSlots()
	if len(frozen) != 1 || frozen[0] != 1 {
		t.Fatalf("expected slot 1 frozen, got %v", frozen)
	}
	if slot, _ := store.Slot("slot-1"); slot.Status != entities.SlotStatusVoting {
		t.Fatalf("expected slot still voting, got %s", slot.Status)
	}
}

func TestProgressFastPathSyncsBeforeRanking(t *testing.T) {
	store, uc := newFixture()
	seedSeason(store, 1)
	store.SetSlot(expiredSlot(1))
	store.SetClip(clip("clip-a", 1, 3, 3))
	store.SetAsyncVotes(true)

	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to pass, got %v", err)
	}
	if report.Results[0].Outcome != entities.OutcomeFinished {
		t.Fatalf("expected finished outcome, got %+v", report.Results[0])
	}
	synced := store.SyncedClips()
	if len(synced) != 1 || len(synced[0]) != 1 || synced[0][0] != "clip-a" {
		t.Fatalf("expected clip-a synced before ranking, got %v", synced)
	}
}

func TestProgressFastPathSyncFailureIsPartial(t *testing.T) {
	store, uc := newFixture()
	seedSeason(store, 1)
	store.SetSlot(expiredSlot(1))
	store.SetClip(clip("clip-a", 1, 10, 5))
	store.SetClip(clip("clip-b", 1, 4, 5))
	store.SetAsyncVotes(true)
	store.SetSyncError(errors.New("counter store down"))

	report, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to pass, got %v", err)
	}
	result := report.Results[0]
	if result.Outcome != entities.OutcomePartial {
		t.Fatalf("expected partial outcome, got %+v", result)
	}
	// Ranking fell back to persisted scores and still locked the slot.
	if result.WinnerClipID != "clip-a" {
		t.Fatalf("expected clip-a to win on persisted score, got %+v", result)
	}
	if slot, _ := store.Slot("slot-1"); slot.Status != entities.SlotStatusLocked {
		t.Fatalf("expected slot locked despite sync failure, got %s", slot.Status)
	}
}
