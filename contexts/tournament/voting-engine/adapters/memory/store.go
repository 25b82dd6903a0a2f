package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cliparena/contexts/tournament/voting-engine/domain/entities"
	domainerrors "cliparena/contexts/tournament/voting-engine/domain/errors"
	"cliparena/contexts/tournament/voting-engine/ports"

	"github.com/google/uuid"
)

// Store backs every voting-engine port in process memory. It powers the
// in-memory module used by unit tests and local development.
type Store struct {
	mu sync.RWMutex

	votes         map[string]entities.Vote
	appliedEvents map[string]bool

	clips   map[string]ports.ClipProjection
	slots   map[string]ports.SlotProjection
	seasons map[string]ports.SeasonProjection
	flags   map[string]bool

	now func() time.Time
}

func NewStore(seed []entities.Vote) *Store {
	votes := make(map[string]entities.Vote, len(seed))
	for _, vote := range seed {
		votes[vote.VoteID] = vote
	}
	return &Store{
		votes:         votes,
		appliedEvents: make(map[string]bool),
		clips:         make(map[string]ports.ClipProjection),
		slots:         make(map[string]ports.SlotProjection),
		seasons:       make(map[string]ports.SeasonProjection),
		flags:         make(map[string]bool),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// --- seeding helpers ---

func (s *Store) SetClip(clip ports.ClipProjection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips[strings.TrimSpace(clip.ClipID)] = clip
}

func (s *Store) SetSlot(slot ports.SlotProjection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[strings.TrimSpace(slot.SlotID)] = slot
}

func (s *Store) SetSeason(season ports.SeasonProjection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seasons[strings.TrimSpace(season.SeasonID)] = season
}

func (s *Store) SetFlag(name string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[name] = enabled
}

func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) GetClipProjection(clipID string) (ports.ClipProjection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clip, ok := s.clips[clipID]
	return clip, ok
}

// --- ports.VoteLedger ---

func (s *Store) InsertVote(_ context.Context, vote entities.Vote) (ports.InsertVoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.votes {
		if existing.VoterKey == vote.VoterKey && existing.ClipID == vote.ClipID {
			return ports.InsertVoteResult{}, domainerrors.ErrAlreadyVoted
		}
	}
	s.votes[vote.VoteID] = vote
	clip := s.clips[vote.ClipID]
	clip.VoteCount++
	clip.WeightedScore += vote.EffectiveWeight()
	s.clips[vote.ClipID] = clip
	return ports.InsertVoteResult{
		VoteID:           vote.VoteID,
		WasNewVote:       true,
		NewVoteCount:     clip.VoteCount,
		NewWeightedScore: clip.WeightedScore,
	}, nil
}

func (s *Store) AccumulateVote(
	_ context.Context,
	voterKey string,
	clipID string,
	voteType entities.VoteType,
	weight float64,
) (ports.InsertVoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.votes {
		if existing.VoterKey != voterKey || existing.ClipID != clipID {
			continue
		}
		existing.Weight += weight
		existing.VoteType = voteType
		s.votes[id] = existing

		clip := s.clips[clipID]
		clip.VoteCount++
		clip.WeightedScore += weight
		s.clips[clipID] = clip
		return ports.InsertVoteResult{
			VoteID:           id,
			WasNewVote:       false,
			NewVoteCount:     clip.VoteCount,
			NewWeightedScore: clip.WeightedScore,
		}, nil
	}
	return ports.InsertVoteResult{}, domainerrors.ErrNotVoted
}

func (s *Store) DeleteVote(_ context.Context, voterKey string, clipID string) (entities.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.votes {
		if existing.VoterKey != voterKey || existing.ClipID != clipID {
			continue
		}
		delete(s.votes, id)
		clip := s.clips[clipID]
		clip.VoteCount--
		clip.WeightedScore -= existing.EffectiveWeight()
		s.clips[clipID] = clip
		return existing, nil
	}
	return entities.Vote{}, domainerrors.ErrNotVoted
}

func (s *Store) ApplyQueuedVote(_ context.Context, event entities.QueueEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appliedEvents[event.EventID] {
		return false, nil
	}
	s.appliedEvents[event.EventID] = true

	switch event.Direction {
	case entities.DirectionRevoke:
		delete(s.votes, event.VoteID)
	default:
		if event.Metadata["accumulate"] == "true" {
			for id, existing := range s.votes {
				if existing.VoterKey == event.VoterKey && existing.ClipID == event.ClipID {
					existing.Weight += event.Weight
					s.votes[id] = existing
					break
				}
			}
			return true, nil
		}
		if _, exists := s.votes[event.VoteID]; !exists {
			s.votes[event.VoteID] = entities.Vote{
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
	}
	return true, nil
}

func (s *Store) ApplyCounterDelta(_ context.Context, clipID string, votes int, weighted float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip := s.clips[clipID]
	clip.VoteCount += votes
	clip.WeightedScore += weighted
	s.clips[clipID] = clip
	return nil
}

func (s *Store) GetVoteByIdentity(_ context.Context, voterKey string, clipID string) (entities.Vote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, existing := range s.votes {
		if existing.VoterKey == voterKey && existing.ClipID == clipID {
			return existing, true, nil
		}
	}
	return entities.Vote{}, false, nil
}

func (s *Store) CountVotesSince(_ context.Context, voterKey string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, existing := range s.votes {
		if existing.VoterKey == voterKey && existing.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *Store) CountTypeForSlot(
	_ context.Context,
	voterKey string,
	slotPosition int,
	voteType entities.VoteType,
) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, existing := range s.votes {
		if existing.VoterKey == voterKey && existing.SlotPosition == slotPosition && existing.VoteType == voteType {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListVoterClipIDs(_ context.Context, voterKey string, slotPosition int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, 4)
	for _, existing := range s.votes {
		if existing.VoterKey == voterKey && existing.SlotPosition == slotPosition {
			ids = append(ids, existing.ClipID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// --- ports.TournamentReader ---

func (s *Store) GetClip(_ context.Context, clipID string) (ports.ClipProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clip, ok := s.clips[strings.TrimSpace(clipID)]
	if !ok {
		return ports.ClipProjection{}, domainerrors.ErrClipNotFound
	}
	return clip, nil
}

func (s *Store) GetActiveSeason(_ context.Context) (ports.SeasonProjection, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, season := range s.seasons {
		if season.Status == "active" {
			return season, true, nil
		}
	}
	return ports.SeasonProjection{}, false, nil
}

// GetCurrentSlot returns the season's open slot: a voting slot when one
// exists, otherwise the lowest-position slot waiting for clips.
func (s *Store) GetCurrentSlot(_ context.Context, seasonID string) (ports.SlotProjection, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var waiting *ports.SlotProjection
	var voting *ports.SlotProjection
	for _, slot := range s.slots {
		if slot.SeasonID != seasonID {
			continue
		}
		slot := slot
		switch slot.Status {
		case "voting":
			if voting == nil || slot.Position < voting.Position {
				voting = &slot
			}
		case "waiting_for_clips":
			if waiting == nil || slot.Position < waiting.Position {
				waiting = &slot
			}
		}
	}
	if voting != nil {
		return *voting, true, nil
	}
	if waiting != nil {
		return *waiting, true, nil
	}
	return ports.SlotProjection{}, false, nil
}

func (s *Store) ListClipsBySlot(_ context.Context, seasonID string, slotPosition int) ([]ports.ClipProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clips := make([]ports.ClipProjection, 0, 8)
	for _, clip := range s.clips {
		if clip.SeasonID == seasonID && clip.SlotPosition == slotPosition {
			clips = append(clips, clip)
		}
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].ClipID < clips[j].ClipID })
	return clips, nil
}

// --- ports.FlagProvider ---

func (s *Store) MultiVote(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags["multi_vote"], nil
}

func (s *Store) AuthRequired(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags["auth_required"], nil
}

func (s *Store) AsyncVotes(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags["async_votes"], nil
}

// --- ports.Clock / ports.IDGenerator ---

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.VoteLedger = (*Store)(nil)
var _ ports.TournamentReader = (*Store)(nil)
var _ ports.FlagProvider = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
var _ CounterDeltaSink = (*Store)(nil)
