package postgresadapter

import (
	"strings"
	"time"

	"cliparena/contexts/tournament/voting-engine/domain/entities"
	"cliparena/contexts/tournament/voting-engine/ports"
)

type voteModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	ClipID       string    `gorm:"column:clip_id;uniqueIndex:idx_votes_voter_clip,priority:2"`
	VoterKey     string    `gorm:"column:voter_key;uniqueIndex:idx_votes_voter_clip,priority:1"`
	UserID       string    `gorm:"column:user_id"`
	VoteType     string    `gorm:"column:vote_type"`
	Weight       float64   `gorm:"column:weight"`
	SlotPosition int       `gorm:"column:slot_position"`
	Flagged      bool      `gorm:"column:flagged"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (voteModel) TableName() string { return "votes" }

func voteModelFromEntity(vote entities.Vote) voteModel {
	row := voteModel{
		ID:           strings.TrimSpace(vote.VoteID),
		ClipID:       strings.TrimSpace(vote.ClipID),
		VoterKey:     strings.TrimSpace(vote.VoterKey),
		UserID:       strings.TrimSpace(vote.UserID),
		VoteType:     string(vote.VoteType),
		Weight:       vote.Weight,
		SlotPosition: vote.SlotPosition,
		Flagged:      vote.Flagged,
		CreatedAt:    vote.CreatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return row
}

func (m voteModel) toEntity() entities.Vote {
	return entities.Vote{
		VoteID:       m.ID,
		ClipID:       m.ClipID,
		VoterKey:     m.VoterKey,
		UserID:       m.UserID,
		VoteType:     entities.VoteType(m.VoteType),
		Weight:       m.Weight,
		SlotPosition: m.SlotPosition,
		Flagged:      m.Flagged,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

type clipModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	SeasonID      string    `gorm:"column:season_id"`
	SlotPosition  int       `gorm:"column:slot_position"`
	OwnerKey      string    `gorm:"column:owner_key"`
	OwnerUserID   string    `gorm:"column:owner_user_id"`
	Status        string    `gorm:"column:status"`
	VoteCount     int       `gorm:"column:vote_count"`
	WeightedScore float64   `gorm:"column:weighted_score"`
	HypeScore     float64   `gorm:"column:hype_score"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (clipModel) TableName() string { return "clips" }

func (m clipModel) toProjection() ports.ClipProjection {
	return ports.ClipProjection{
		ClipID:        m.ID,
		SeasonID:      m.SeasonID,
		SlotPosition:  m.SlotPosition,
		OwnerKey:      m.OwnerKey,
		OwnerUserID:   m.OwnerUserID,
		Status:        m.Status,
		VoteCount:     m.VoteCount,
		WeightedScore: m.WeightedScore,
		HypeScore:     m.HypeScore,
	}
}

type slotModel struct {
	ID              string     `gorm:"column:id;primaryKey"`
	SeasonID        string     `gorm:"column:season_id"`
	SlotPosition    int        `gorm:"column:slot_position"`
	Status          string     `gorm:"column:status"`
	VotingStartedAt *time.Time `gorm:"column:voting_started_at"`
	VotingEndsAt    *time.Time `gorm:"column:voting_ends_at"`
}

func (slotModel) TableName() string { return "slots" }

func (m slotModel) toProjection() ports.SlotProjection {
	return ports.SlotProjection{
		SlotID:          m.ID,
		SeasonID:        m.SeasonID,
		Position:        m.SlotPosition,
		Status:          m.Status,
		VotingStartedAt: m.VotingStartedAt,
		VotingEndsAt:    m.VotingEndsAt,
	}
}

type seasonModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	Status     string    `gorm:"column:status"`
	TotalSlots int       `gorm:"column:total_slots"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (seasonModel) TableName() string { return "seasons" }

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string { return "vote_event_dedup" }

type queueEventModel struct {
	EventID      string     `gorm:"column:event_id;primaryKey"`
	VoteID       string     `gorm:"column:vote_id;index"`
	ClipID       string     `gorm:"column:clip_id;index:idx_vote_queue_voter_clip,priority:2"`
	VoterKey     string     `gorm:"column:voter_key;index:idx_vote_queue_voter_clip,priority:1"`
	VoteType     string     `gorm:"column:vote_type"`
	SlotPosition int        `gorm:"column:slot_position"`
	Direction    string     `gorm:"column:direction"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	Attempts     int        `gorm:"column:attempts"`
	ClaimedAt    *time.Time `gorm:"column:claimed_at"`
	OccurredAt   time.Time  `gorm:"column:occurred_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
}

func (queueEventModel) TableName() string { return "vote_queue" }

type deadLetterModel struct {
	Seq           int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	EventID       string    `gorm:"column:event_id"`
	Payload       []byte    `gorm:"column:payload"`
	Cause         string    `gorm:"column:cause"`
	Attempts      int       `gorm:"column:attempts"`
	FirstFailedAt time.Time `gorm:"column:first_failed_at"`
	LastFailedAt  time.Time `gorm:"column:last_failed_at"`
}

func (deadLetterModel) TableName() string { return "vote_queue_dead_letters" }

type featureFlagModel struct {
	Name    string `gorm:"column:name;primaryKey"`
	Enabled bool   `gorm:"column:enabled"`
}

func (featureFlagModel) TableName() string { return "feature_flags" }

// counterDeltaModel is one fast-path counter mutation. The composite key
// absorbs redelivery: the same logical increment or decrement lands once no
// matter how often it arrives or in which order.
type counterDeltaModel struct {
	VoteID    string    `gorm:"column:vote_id;primaryKey"`
	Direction string    `gorm:"column:direction;primaryKey"`
	ClipID    string    `gorm:"column:clip_id;index"`
	Votes     int       `gorm:"column:votes"`
	Weighted  float64   `gorm:"column:weighted"`
	Applied   bool      `gorm:"column:applied;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (counterDeltaModel) TableName() string { return "vote_counter_deltas" }

type slotFreezeModel struct {
	SlotPosition int       `gorm:"column:slot_position;primaryKey"`
	FrozenAt     time.Time `gorm:"column:frozen_at"`
}

func (slotFreezeModel) TableName() string { return "slot_freezes" }
