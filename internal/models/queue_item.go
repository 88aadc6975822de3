package models

import "time"

// Queue item statuses.
const (
	QueueQueued  = "queued"
	QueueClaimed = "claimed"
	QueueDone    = "done"
	QueueDead    = "dead"
)

// QueueItem is one delivery of a meeting to the pipeline.
type QueueItem struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	MeetingID   string    `gorm:"size:32;not null;index"`
	Status      string    `gorm:"size:16;default:queued;index"`
	Attempts    int       `gorm:"default:0"`
	AvailableAt time.Time `gorm:"index"`
	ClaimedBy   string    `gorm:"size:64"`
	ClaimedAt   *time.Time
	LastError   string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
