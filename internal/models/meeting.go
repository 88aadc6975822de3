package models

import "time"

// Meeting statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Meeting is the durable job record for one uploaded recording.
type Meeting struct {
	ID            string  `gorm:"primaryKey;size:32"`
	OwnerID       string  `gorm:"size:64;not null;index"`
	Title         string  `gorm:"size:255;not null"`
	AudioPath     string  `gorm:"size:255;not null"`
	Transcription string  `gorm:"type:text"`
	Summary       *string `gorm:"type:text"`
	Status        string  `gorm:"size:16;default:pending;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time

	ActionItems []ActionItem `gorm:"foreignKey:MeetingID"`
}

// ActionItem is one follow-up extracted from a meeting summary.
type ActionItem struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	MeetingID string `gorm:"size:32;not null;index"`
	Position  int    `gorm:"not null"`
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time
}
