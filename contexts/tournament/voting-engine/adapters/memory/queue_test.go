package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cliparena/contexts/tournament/voting-engine/domain/entities"
)

func queueEvent(id string) entities.QueueEvent {
	return entities.QueueEvent{
		EventID:   id,
		VoteID:    "vote-" + id,
		ClipID:    "clip-1",
		VoterKey:  "voter-1",
		Direction: entities.DirectionCast,
	}
}

func TestQueuePopClaimsExclusively(t *testing.T) {
	queue := NewQueue(nil)
	ctx := context.Background()

	_ = queue.Push(ctx, queueEvent("e1"))
	_ = queue.Push(ctx, queueEvent("e2"))

	first, err := queue.Pop(ctx, 10)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(first))
	}
	if first[0].Attempts != 1 {
		t.Fatalf("claim should count an attempt, got %d", first[0].Attempts)
	}

	second, err := queue.Pop(ctx, 10)
	if err != nil {
		t.Fatalf("second pop: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("claimed events must not be popped twice, got %d", len(second))
	}

	health, _ := queue.Health(ctx)
	if health.Pending != 0 || health.Processing != 2 {
		t.Fatalf("expected 0 pending / 2 processing, got %+v", health)
	}
}

func TestQueueAcknowledgeRemovesClaim(t *testing.T) {
	queue := NewQueue(nil)
	ctx := context.Background()

	_ = queue.Push(ctx, queueEvent("e1"))
	events, _ := queue.Pop(ctx, 1)
	if err := queue.Acknowledge(ctx, events...); err != nil {
		t.Fatalf("ack: %v", err)
	}

	health, _ := queue.Health(ctx)
	if health.Processing != 0 || health.Pending != 0 {
		t.Fatalf("expected empty queue after ack, got %+v", health)
	}
	if health.LastProcessedAt.IsZero() {
		t.Fatal("ack should stamp last processed time")
	}
}

func TestQueueRecoverOrphansIsIdempotent(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	queue := NewQueue(func() time.Time { return now })
	ctx := context.Background()

	_ = queue.Push(ctx, queueEvent("e1"))
	if _, err := queue.Pop(ctx, 1); err != nil {
		t.Fatalf("pop: %v", err)
	}

	now = now.Add(10 * time.Minute)
	recovered, err := queue.RecoverOrphans(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected 1 recovered, got %d", recovered)
	}

	recovered, err = queue.RecoverOrphans(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("second recover: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("second recovery must find nothing, got %d", recovered)
	}

	events, _ := queue.Pop(ctx, 1)
	if len(events) != 1 || events[0].Attempts != 2 {
		t.Fatalf("recovered event should be re-claimable with attempts=2, got %+v", events)
	}
}

func TestQueueRecentClaimsSurviveRecovery(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	queue := NewQueue(func() time.Time { return now })
	ctx := context.Background()

	_ = queue.Push(ctx, queueEvent("e1"))
	_, _ = queue.Pop(ctx, 1)

	recovered, err := queue.RecoverOrphans(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("fresh claim must not be recovered, got %d", recovered)
	}
}

func TestQueueDeadLetterCapEvictsOldest(t *testing.T) {
	queue := NewQueue(nil)
	ctx := context.Background()

	for i := 0; i < entities.DeadLetterCap+10; i++ {
		event := queueEvent(fmt.Sprintf("e%d", i))
		if err := queue.MoveToDeadLetter(ctx, event, "apply failed", 5); err != nil {
			t.Fatalf("dead-letter %d: %v", i, err)
		}
	}

	letters, err := queue.DeadLetters(ctx)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(letters) != entities.DeadLetterCap {
		t.Fatalf("expected cap %d, got %d", entities.DeadLetterCap, len(letters))
	}
	if letters[0].Event.EventID != "e10" {
		t.Fatalf("oldest entries should be evicted first, got %s", letters[0].Event.EventID)
	}
}
