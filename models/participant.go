package models

import (
	"time"
)

// Participant roles
const (
	RoleHost   = "host"
	RoleMember = "member"
)

// Participant statuses
const (
	ParticipantPending  = "pending"
	ParticipantAccepted = "accepted"
	ParticipantRejected = "rejected"
	ParticipantFinished = "finished"
)

// ScoreNotSubmitted is the sentinel score for a participant that has not
// finished playing yet.
const ScoreNotSubmitted = -1

type Participant struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ChallengeID   uint       `gorm:"not null;uniqueIndex:idx_challenge_user" json:"challenge_id"`
	UserID        uint       `gorm:"not null;uniqueIndex:idx_challenge_user" json:"user_id"`
	User          User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role          string     `gorm:"size:20;default:'member'" json:"role"`      // host, member
	Status        string     `gorm:"size:20;default:'pending'" json:"status"`   // pending, accepted, rejected, finished
	Score         int        `gorm:"default:-1" json:"score"`                   // -1 = not yet submitted
	TimeTaken     int        `json:"time_taken"`                                // seconds
	ProgressIndex int        `json:"progress_index"`                            // current question index, realtime only
	AcceptedAt    *time.Time `json:"accepted_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
