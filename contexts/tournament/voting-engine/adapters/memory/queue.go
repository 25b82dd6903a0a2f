package memory

import (
	"context"
	"sync"
	"time"

	"cliparena/contexts/tournament/voting-engine/domain/entities"
	"cliparena/contexts/tournament/voting-engine/ports"
)

type claim struct {
	event     entities.QueueEvent
	claimedAt time.Time
}

// Queue is the in-process vote event pipeline: a pending list, a processing
// map keyed by event ID, and a capped dead-letter ring.
type Queue struct {
	mu            sync.Mutex
	pending       []entities.QueueEvent
	processing    map[string]claim
	deadLetters   []entities.DeadLetterEntry
	firstFailures map[string]time.Time
	lastProcessed time.Time
	now           func() time.Time
}

func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Queue{
		processing:    make(map[string]claim),
		firstFailures: make(map[string]time.Time),
		now:           now,
	}
}

func (q *Queue) Push(_ context.Context, event entities.QueueEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, event)
	return nil
}

// Pop moves up to n events from pending to processing in one critical
// section, so each event is claimed by exactly one consumer. Attempts is
// incremented on every claim, counting redeliveries.
func (q *Queue) Pop(_ context.Context, n int) ([]entities.QueueEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.pending) == 0 {
		return nil, nil
	}
	if n > len(q.pending) {
		n = len(q.pending)
	}
	claimed := make([]entities.QueueEvent, 0, n)
	now := q.now()
	for _, event := range q.pending[:n] {
		event.Attempts++
		q.processing[event.EventID] = claim{event: event, claimedAt: now}
		claimed = append(claimed, event)
	}
	q.pending = append([]entities.QueueEvent(nil), q.pending[n:]...)
	return claimed, nil
}

func (q *Queue) Acknowledge(_ context.Context, events ...entities.QueueEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, event := range events {
		delete(q.processing, event.EventID)
		delete(q.firstFailures, event.EventID)
	}
	q.lastProcessed = q.now()
	return nil
}

func (q *Queue) MoveToDeadLetter(_ context.Context, event entities.QueueEvent, cause string, attempts int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, event.EventID)

	now := q.now()
	first, ok := q.firstFailures[event.EventID]
	if !ok {
		first = now
	}
	delete(q.firstFailures, event.EventID)

	q.deadLetters = append(q.deadLetters, entities.DeadLetterEntry{
		Event:         event,
		Cause:         cause,
		Attempts:      attempts,
		FirstFailedAt: first,
		LastFailedAt:  now,
	})
	if len(q.deadLetters) > entities.DeadLetterCap {
		q.deadLetters = append([]entities.DeadLetterEntry(nil), q.deadLetters[len(q.deadLetters)-entities.DeadLetterCap:]...)
	}
	return nil
}

func (q *Queue) DeadLetters(_ context.Context) ([]entities.DeadLetterEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]entities.DeadLetterEntry(nil), q.deadLetters...), nil
}

func (q *Queue) Health(_ context.Context) (entities.QueueHealth, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return entities.QueueHealth{
		Pending:         len(q.pending),
		Processing:      len(q.processing),
		DeadLettered:    len(q.deadLetters),
		LastProcessedAt: q.lastProcessed,
	}, nil
}

// RecoverOrphans returns claims older than grace to the pending list. Running
// it again against the same state finds nothing, and concurrent callers
// cannot re-pend the same claim twice.
func (q *Queue) RecoverOrphans(_ context.Context, grace time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := q.now().Add(-grace)
	recovered := 0
	for id, item := range q.processing {
		if item.claimedAt.After(cutoff) {
			continue
		}
		q.firstFailures[id] = firstOf(q.firstFailures[id], item.claimedAt)
		q.pending = append(q.pending, item.event)
		delete(q.processing, id)
		recovered++
	}
	return recovered, nil
}

// pendingCastsLocked gathers cast events awaiting ledger replay, whether
// unclaimed or claimed, and drops any cast whose vote also has a revoke in
// flight. Callers must hold q.mu.
func (q *Queue) pendingCastsLocked() []entities.QueueEvent {
	all := make([]entities.QueueEvent, 0, len(q.pending)+len(q.processing))
	all = append(all, q.pending...)
	for _, item := range q.processing {
		all = append(all, item.event)
	}
	revoked := make(map[string]bool)
	for _, event := range all {
		if event.Direction == entities.DirectionRevoke {
			revoked[event.VoteID] = true
		}
	}
	casts := make([]entities.QueueEvent, 0, len(all))
	for _, event := range all {
		if event.Direction == entities.DirectionRevoke || revoked[event.VoteID] {
			continue
		}
		casts = append(casts, event)
	}
	return casts
}

func (q *Queue) PendingCast(_ context.Context, voterKey string, clipID string) (entities.QueueEvent, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, event := range q.pendingCastsLocked() {
		if event.VoterKey == voterKey && event.ClipID == clipID {
			return event, true, nil
		}
	}
	return entities.QueueEvent{}, false, nil
}

func (q *Queue) CountPendingCasts(_ context.Context, voterKey string, since time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, event := range q.pendingCastsLocked() {
		if event.VoterKey == voterKey && event.OccurredAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (q *Queue) CountPendingTypeForSlot(
	_ context.Context,
	voterKey string,
	slotPosition int,
	voteType entities.VoteType,
) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, event := range q.pendingCastsLocked() {
		if event.VoterKey == voterKey && event.SlotPosition == slotPosition && event.VoteType == voteType {
			count++
		}
	}
	return count, nil
}

func firstOf(existing time.Time, fallback time.Time) time.Time {
	if existing.IsZero() {
		return fallback
	}
	return existing
}

var _ ports.VoteQueue = (*Queue)(nil)
