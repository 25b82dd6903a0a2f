package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cliparena/contexts/tournament/progression-service/domain/entities"
	domainerrors "cliparena/contexts/tournament/progression-service/domain/errors"
	"cliparena/contexts/tournament/progression-service/ports"
)

// Store backs every progression port in memory. It exists for tests and for
// running the service without Postgres.
type Store struct {
	mu sync.Mutex

	seasons map[string]entities.Season
	slots   map[string]entities.Slot
	clips   map[string]entities.Clip

	locks map[string]lease

	asyncVotes bool

	syncedClips  [][]string
	clearedClips [][]string
	frozenSlots  []int
	syncErr      error

	now    time.Time
	nextID int
}

type lease struct {
	lockID    string
	expiresAt time.Time
}

func NewStore() *Store {
	return &Store{
		seasons: make(map[string]entities.Season),
		slots:   make(map[string]entities.Slot),
		clips:   make(map[string]entities.Clip),
		locks:   make(map[string]lease),
		now:     time.Now().UTC(),
	}
}

func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now.UTC()
}

func (s *Store) SetSeason(season entities.Season) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seasons[season.SeasonID] = season
}

func (s *Store) SetSlot(slot entities.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.SlotID] = slot
}

func (s *Store) SetClip(clip entities.Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips[clip.ClipID] = clip
}

func (s *Store) SetAsyncVotes(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asyncVotes = enabled
}

func (s *Store) SetSyncError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncErr = err
}

func (s *Store) Season(id string) (entities.Season, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	season, ok := s.seasons[id]
	return season, ok
}

func (s *Store) Slot(id string) (entities.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	return slot, ok
}

func (s *Store) Clip(id string) (entities.Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip, ok := s.clips[id]
	return clip, ok
}

func (s *Store) FrozenSlots() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.frozenSlots))
	copy(out, s.frozenSlots)
	return out
}

func (s *Store) SyncedClips() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.syncedClips))
	copy(out, s.syncedClips)
	return out
}

func (s *Store) ClearedClips() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.clearedClips))
	copy(out, s.clearedClips)
	return out
}

func (s *Store) ActiveSeason(_ context.Context) (entities.Season, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, season := range s.seasons {
		if season.Status == entities.SeasonStatusActive {
			return season, true, nil
		}
	}
	return entities.Season{}, false, nil
}

func (s *Store) ExpiredVotingSlots(_ context.Context, seasonID string, now time.Time) ([]entities.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Slot
	for _, slot := range s.slots {
		if slot.SeasonID == seasonID && slot.Expired(now) {
			out = append(out, slot)
		}
	}
	sortSlots(out)
	return out, nil
}

func (s *Store) SlotsEndingWithin(
	_ context.Context,
	seasonID string,
	now time.Time,
	buffer time.Duration,
) ([]entities.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(buffer)
	var out []entities.Slot
	for _, slot := range s.slots {
		if slot.SeasonID != seasonID || slot.Status != entities.SlotStatusVoting || slot.VotingEndsAt == nil {
			continue
		}
		if slot.VotingEndsAt.After(now) && !slot.VotingEndsAt.After(cutoff) {
			out = append(out, slot)
		}
	}
	sortSlots(out)
	return out, nil
}

func (s *Store) SlotByPosition(_ context.Context, seasonID string, position int) (entities.Slot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		if slot.SeasonID == seasonID && slot.Position == position {
			return slot, true, nil
		}
	}
	return entities.Slot{}, false, nil
}

func (s *Store) ActiveClips(_ context.Context, seasonID string, position int) ([]entities.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Clip
	for _, clip := range s.clips {
		if clip.SeasonID == seasonID && clip.SlotPosition == position && clip.Status == entities.ClipStatusActive {
			out = append(out, clip)
		}
	}
	return out, nil
}

func (s *Store) LockSlot(_ context.Context, slotID string, winnerClipID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok || slot.Status != entities.SlotStatusVoting {
		return domainerrors.ErrSlotNotFound
	}
	slot.Status = entities.SlotStatusLocked
	slot.WinnerClipID = winnerClipID
	slot.UpdatedAt = at.UTC()
	s.slots[slotID] = slot
	return nil
}

func (s *Store) MarkClipLocked(_ context.Context, clipID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip, ok := s.clips[clipID]
	if !ok {
		return nil
	}
	if clip.Status == entities.ClipStatusActive {
		clip.Status = entities.ClipStatusLocked
		s.clips[clipID] = clip
	}
	return nil
}

func (s *Store) EliminateClips(_ context.Context, clipIDs []string, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range clipIDs {
		clip, ok := s.clips[id]
		if ok && clip.Status == entities.ClipStatusActive {
			clip.Status = entities.ClipStatusEliminated
			s.clips[id] = clip
		}
	}
	return nil
}

func (s *Store) SetSlotWaiting(_ context.Context, slotID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok {
		return domainerrors.ErrSlotNotFound
	}
	slot.Status = entities.SlotStatusWaitingForClips
	slot.VotingStartedAt = nil
	slot.VotingEndsAt = nil
	slot.UpdatedAt = at.UTC()
	s.slots[slotID] = slot
	return nil
}

func (s *Store) ActivateSlot(_ context.Context, slotID string, startsAt time.Time, endsAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok {
		return domainerrors.ErrSlotNotFound
	}
	started := startsAt.UTC()
	ends := endsAt.UTC()
	slot.Status = entities.SlotStatusVoting
	slot.VotingStartedAt = &started
	slot.VotingEndsAt = &ends
	slot.UpdatedAt = started
	s.slots[slotID] = slot
	return nil
}

func (s *Store) FinishSeason(_ context.Context, seasonID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	season, ok := s.seasons[seasonID]
	if !ok {
		return domainerrors.ErrSeasonNotFound
	}
	season.Status = entities.SeasonStatusFinished
	season.UpdatedAt = at.UTC()
	s.seasons[seasonID] = season
	return nil
}

func (s *Store) EliminateRemainingClips(
	_ context.Context,
	seasonID string,
	_ string,
	_ time.Time,
) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, clip := range s.clips {
		if clip.SeasonID == seasonID && clip.Status == entities.ClipStatusActive {
			clip.Status = entities.ClipStatusEliminated
			s.clips[id] = clip
			count++
		}
	}
	return count, nil
}

func (s *Store) Acquire(_ context.Context, jobName string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now
	if current, ok := s.locks[jobName]; ok && current.expiresAt.After(now) {
		return "", false, nil
	}
	s.nextID++
	lockID := fmt.Sprintf("lock-%d", s.nextID)
	s.locks[jobName] = lease{lockID: lockID, expiresAt: now.Add(ttl)}
	return lockID, true, nil
}

func (s *Store) Release(_ context.Context, jobName string, lockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.locks[jobName]; ok && current.lockID == lockID {
		delete(s.locks, jobName)
	}
	return nil
}

func (s *Store) ForceSync(_ context.Context, clipIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncErr != nil {
		return s.syncErr
	}
	s.syncedClips = append(s.syncedClips, append([]string(nil), clipIDs...))
	return nil
}

func (s *Store) ClearClips(_ context.Context, clipIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearedClips = append(s.clearedClips, append([]string(nil), clipIDs...))
	return nil
}

func (s *Store) FreezeSlot(_ context.Context, slotPosition int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozenSlots = append(s.frozenSlots, slotPosition)
	return nil
}

func (s *Store) UnfreezeSlot(_ context.Context, slotPosition int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.frozenSlots[:0]
	for _, pos := range s.frozenSlots {
		if pos != slotPosition {
			kept = append(kept, pos)
		}
	}
	s.frozenSlots = kept
	return nil
}

func (s *Store) AsyncVotes(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asyncVotes, nil
}

func (s *Store) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func sortSlots(slots []entities.Slot) {
	sort.Slice(slots, func(i, j int) bool { return slots[i].Position < slots[j].Position })
}

var (
	_ ports.TournamentRepository = (*Store)(nil)
	_ ports.CronLock             = (*Store)(nil)
	_ ports.CounterSyncer        = (*Store)(nil)
	_ ports.FastPathProbe        = (*Store)(nil)
	_ ports.Clock                = (*Store)(nil)
)
