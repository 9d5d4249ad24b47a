package models

import (
	"time"
)

// Challenge modes
const (
	ModeOneVsOne     = "1v1"
	ModeTwoVsTwo     = "2v2"
	ModeSurvival     = "survival"
	ModeBattleRoyale = "battleroyale"
)

// Challenge statuses
const (
	ChallengePending   = "pending"
	ChallengeActive    = "active"
	ChallengeFinished  = "finished"
	ChallengeCancelled = "cancelled"
	ChallengeRejected  = "rejected"
)

type Challenge struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	CreatorID        uint          `gorm:"not null" json:"creator_id"`
	Creator          User          `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Mode             string        `gorm:"size:20;not null" json:"mode"` // 1v1, 2v2, survival, battleroyale
	QuizID           uint          `json:"quiz_id"`                      // 0 for survival challenges
	Quiz             *Quiz         `gorm:"foreignKey:QuizID" json:"quiz,omitempty"`
	IsRealtime       bool          `json:"is_realtime"`
	TimeLimitSeconds int           `json:"time_limit_seconds"` // 0 = unlimited
	WagerAmount      int           `json:"wager_amount"`
	RoomCode         *string       `gorm:"size:6;uniqueIndex" json:"room_code"`
	Status           string        `gorm:"size:20;default:'pending'" json:"status"`
	Participants     []Participant `json:"participants,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsTerminal reports whether the challenge can no longer be mutated
func (c *Challenge) IsTerminal() bool {
	return c.Status == ChallengeFinished || c.Status == ChallengeCancelled || c.Status == ChallengeRejected
}

// IsValidMode reports whether the given mode is one of the supported modes
func IsValidMode(mode string) bool {
	switch mode {
	case ModeOneVsOne, ModeTwoVsTwo, ModeSurvival, ModeBattleRoyale:
		return true
	}
	return false
}
