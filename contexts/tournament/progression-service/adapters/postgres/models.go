package postgresadapter

import (
	"time"

	"cliparena/contexts/tournament/progression-service/domain/entities"
)

type seasonModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	Status     string    `gorm:"column:status;index"`
	TotalSlots int       `gorm:"column:total_slots"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (seasonModel) TableName() string { return "seasons" }

func (m seasonModel) toEntity() entities.Season {
	return entities.Season{
		SeasonID:   m.ID,
		Status:     entities.SeasonStatus(m.Status),
		TotalSlots: m.TotalSlots,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

type slotModel struct {
	ID                  string     `gorm:"column:id;primaryKey"`
	SeasonID            string     `gorm:"column:season_id;index"`
	SlotPosition        int        `gorm:"column:slot_position"`
	Status              string     `gorm:"column:status;index"`
	VotingStartedAt     *time.Time `gorm:"column:voting_started_at"`
	VotingEndsAt        *time.Time `gorm:"column:voting_ends_at"`
	VotingDurationHours int        `gorm:"column:voting_duration_hours"`
	WinnerClipID        string     `gorm:"column:winner_clip_id"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (slotModel) TableName() string { return "slots" }

func (m slotModel) toEntity() entities.Slot {
	return entities.Slot{
		SlotID:              m.ID,
		SeasonID:            m.SeasonID,
		Position:            m.SlotPosition,
		Status:              entities.SlotStatus(m.Status),
		VotingStartedAt:     m.VotingStartedAt,
		VotingEndsAt:        m.VotingEndsAt,
		VotingDurationHours: m.VotingDurationHours,
		WinnerClipID:        m.WinnerClipID,
		UpdatedAt:           m.UpdatedAt.UTC(),
	}
}

type clipModel struct {
	ID               string     `gorm:"column:id;primaryKey"`
	SeasonID         string     `gorm:"column:season_id;index"`
	SlotPosition     int        `gorm:"column:slot_position"`
	Status           string     `gorm:"column:status;index"`
	VoteCount        int        `gorm:"column:vote_count"`
	WeightedScore    float64    `gorm:"column:weighted_score"`
	HypeScore        float64    `gorm:"column:hype_score"`
	LockedAt         *time.Time `gorm:"column:locked_at"`
	EliminatedAt     *time.Time `gorm:"column:eliminated_at"`
	EliminatedReason string     `gorm:"column:eliminated_reason"`
}

func (clipModel) TableName() string { return "clips" }

func (m clipModel) toEntity() entities.Clip {
	return entities.Clip{
		ClipID:        m.ID,
		SeasonID:      m.SeasonID,
		SlotPosition:  m.SlotPosition,
		Status:        entities.ClipStatus(m.Status),
		VoteCount:     m.VoteCount,
		WeightedScore: m.WeightedScore,
		HypeScore:     m.HypeScore,
	}
}

type cronLockModel struct {
	JobName    string    `gorm:"column:job_name;primaryKey"`
	LockID     string    `gorm:"column:lock_id"`
	AcquiredAt time.Time `gorm:"column:acquired_at"`
	ExpiresAt  time.Time `gorm:"column:expires_at;index"`
}

func (cronLockModel) TableName() string { return "cron_locks" }
