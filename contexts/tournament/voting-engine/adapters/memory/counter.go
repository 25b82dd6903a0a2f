package memory

import (
	"context"
	"sync"

	"cliparena/contexts/tournament/voting-engine/ports"
)

// CounterDeltaSink receives drained fast-path deltas. The postgres ledger
// satisfies it; tests plug in the memory store.
type CounterDeltaSink interface {
	ApplyCounterDelta(ctx context.Context, clipID string, votes int, weighted float64) error
}

type clipCounter struct {
	// entries maps vote ID to the weight it contributed; removed remembers
	// decrements so replays and out-of-order deliveries merge commutatively.
	entries       map[string]float64
	removed       map[string]bool
	deltaVotes    int
	deltaWeighted float64
}

// CounterStore is the fast-path vote counter: commutative, per-vote-ID
// deduplicated increments absorbed in process memory ahead of ledger
// reconciliation.
type CounterStore struct {
	mu     sync.Mutex
	clips  map[string]*clipCounter
	frozen map[int]bool
	sink   CounterDeltaSink
}

func NewCounterStore(sink CounterDeltaSink) *CounterStore {
	return &CounterStore{
		clips:  make(map[string]*clipCounter),
		frozen: make(map[int]bool),
		sink:   sink,
	}
}

func (s *CounterStore) counter(clipID string) *clipCounter {
	counter, ok := s.clips[clipID]
	if !ok {
		counter = &clipCounter{
			entries: make(map[string]float64),
			removed: make(map[string]bool),
		}
		s.clips[clipID] = counter
	}
	return counter
}

func (s *CounterStore) Increment(_ context.Context, clipID string, voteID string, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter := s.counter(clipID)
	if counter.removed[voteID] {
		// A decrement for this vote already merged; they cancel out.
		delete(counter.removed, voteID)
		return nil
	}
	if _, seen := counter.entries[voteID]; seen {
		return nil
	}
	counter.entries[voteID] = weight
	counter.deltaVotes++
	counter.deltaWeighted += weight
	return nil
}

func (s *CounterStore) Decrement(_ context.Context, clipID string, voteID string, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter := s.counter(clipID)
	if counter.removed[voteID] {
		return nil
	}
	if _, seen := counter.entries[voteID]; seen {
		delete(counter.entries, voteID)
	}
	counter.removed[voteID] = true
	counter.deltaVotes--
	counter.deltaWeighted -= weight
	return nil
}

func (s *CounterStore) CountAndScore(_ context.Context, clipID string) (int, float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.clips[clipID]
	if !ok {
		return 0, 0, false, nil
	}
	return counter.deltaVotes, counter.deltaWeighted, true, nil
}

// ForceSync swaps each clip's accumulated delta out under the lock, then
// applies it to the sink outside any stale read. Votes arriving during the
// apply land in a fresh delta and survive to the next sync; an apply failure
// merges the delta back.
func (s *CounterStore) ForceSync(ctx context.Context, clipIDs []string) error {
	for _, clipID := range clipIDs {
		s.mu.Lock()
		counter, ok := s.clips[clipID]
		if !ok || (counter.deltaVotes == 0 && counter.deltaWeighted == 0) {
			s.mu.Unlock()
			continue
		}
		votes, weighted := counter.deltaVotes, counter.deltaWeighted
		counter.deltaVotes, counter.deltaWeighted = 0, 0
		s.mu.Unlock()

		if err := s.sink.ApplyCounterDelta(ctx, clipID, votes, weighted); err != nil {
			s.mu.Lock()
			counter.deltaVotes += votes
			counter.deltaWeighted += weighted
			s.mu.Unlock()
			return err
		}
	}
	return nil
}

func (s *CounterStore) ClearClips(_ context.Context, clipIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, clipID := range clipIDs {
		delete(s.clips, clipID)
	}
	return nil
}

func (s *CounterStore) FreezeSlot(_ context.Context, slotPosition int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen[slotPosition] = true
	return nil
}

func (s *CounterStore) SlotFrozen(_ context.Context, slotPosition int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen[slotPosition], nil
}

// UnfreezeSlot reopens a slot's fast path after a transition settles.
func (s *CounterStore) UnfreezeSlot(_ context.Context, slotPosition int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.frozen, slotPosition)
	return nil
}

var _ ports.CounterStore = (*CounterStore)(nil)
