package memory

import (
	"context"
	"errors"
	"testing"
)

type recordingSink struct {
	applied map[string][2]float64
	fail    bool
}

func (s *recordingSink) ApplyCounterDelta(_ context.Context, clipID string, votes int, weighted float64) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	if s.applied == nil {
		s.applied = make(map[string][2]float64)
	}
	current := s.applied[clipID]
	s.applied[clipID] = [2]float64{current[0] + float64(votes), current[1] + weighted}
	return nil
}

func TestCounterIncrementDeduplicatesByVoteID(t *testing.T) {
	counter := NewCounterStore(&recordingSink{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := counter.Increment(ctx, "clip-1", "vote-1", 5); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	votes, weighted, ok, err := counter.CountAndScore(ctx, "clip-1")
	if err != nil || !ok {
		t.Fatalf("count: ok=%v err=%v", ok, err)
	}
	if votes != 1 || weighted != 5 {
		t.Fatalf("replayed increment must apply once, got %d/%v", votes, weighted)
	}
}

func TestCounterDecrementBeforeIncrementCancels(t *testing.T) {
	counter := NewCounterStore(&recordingSink{})
	ctx := context.Background()

	if err := counter.Decrement(ctx, "clip-1", "vote-1", 2); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := counter.Increment(ctx, "clip-1", "vote-1", 2); err != nil {
		t.Fatalf("increment: %v", err)
	}
	votes, weighted, _, err := counter.CountAndScore(ctx, "clip-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if votes != 0 || weighted != 0 {
		t.Fatalf("out-of-order pair must cancel, got %d/%v", votes, weighted)
	}
}

func TestCounterForceSyncDrainsDeltas(t *testing.T) {
	sink := &recordingSink{}
	counter := NewCounterStore(sink)
	ctx := context.Background()

	_ = counter.Increment(ctx, "clip-1", "vote-1", 1)
	_ = counter.Increment(ctx, "clip-1", "vote-2", 5)
	if err := counter.ForceSync(ctx, []string{"clip-1"}); err != nil {
		t.Fatalf("force sync: %v", err)
	}

	applied := sink.applied["clip-1"]
	if applied[0] != 2 || applied[1] != 6 {
		t.Fatalf("expected sink to receive 2 votes / weight 6, got %v", applied)
	}
	votes, weighted, _, _ := counter.CountAndScore(ctx, "clip-1")
	if votes != 0 || weighted != 0 {
		t.Fatalf("delta should be drained after sync, got %d/%v", votes, weighted)
	}
}

func TestCounterForceSyncFailureRestoresDelta(t *testing.T) {
	sink := &recordingSink{fail: true}
	counter := NewCounterStore(sink)
	ctx := context.Background()

	_ = counter.Increment(ctx, "clip-1", "vote-1", 3)
	if err := counter.ForceSync(ctx, []string{"clip-1"}); err == nil {
		t.Fatal("expected sync failure")
	}
	votes, weighted, _, _ := counter.CountAndScore(ctx, "clip-1")
	if votes != 1 || weighted != 3 {
		t.Fatalf("failed sync must keep the delta, got %d/%v", votes, weighted)
	}

	sink.fail = false
	if err := counter.ForceSync(ctx, []string{"clip-1"}); err != nil {
		t.Fatalf("retry sync: %v", err)
	}
	if applied := sink.applied["clip-1"]; applied[0] != 1 || applied[1] != 3 {
		t.Fatalf("retry should apply original delta, got %v", applied)
	}
}

func TestCounterClearClips(t *testing.T) {
	counter := NewCounterStore(&recordingSink{})
	ctx := context.Background()

	_ = counter.Increment(ctx, "clip-1", "vote-1", 1)
	if err := counter.ClearClips(ctx, []string{"clip-1"}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, _, ok, _ := counter.CountAndScore(ctx, "clip-1"); ok {
		t.Fatal("cleared clip should have no counter state")
	}
}

func TestCounterFreezeSlot(t *testing.T) {
	counter := NewCounterStore(&recordingSink{})
	ctx := context.Background()

	if frozen, _ := counter.SlotFrozen(ctx, 3); frozen {
		t.Fatal("slot should start unfrozen")
	}
	if err := counter.FreezeSlot(ctx, 3); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if frozen, _ := counter.SlotFrozen(ctx, 3); !frozen {
		t.Fatal("slot should be frozen")
	}
	if err := counter.UnfreezeSlot(ctx, 3); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if frozen, _ := counter.SlotFrozen(ctx, 3); frozen {
		t.Fatal("slot should be unfrozen again")
	}
}
