package models

import (
	"time"
)

// Quiz is boundary metadata only. Question content lives in the quiz
// content service; this server never resolves questions itself.
type Quiz struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	QuestionCount int       `gorm:"not null" json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
