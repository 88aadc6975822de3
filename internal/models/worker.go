package models

import "time"

// Worker statuses.
const (
	WorkerIdle    = "idle"
	WorkerWorking = "working"
	WorkerDead    = "dead"
)

// Worker is a registered pipeline consumer.
type Worker struct {
	ID             string    `gorm:"primaryKey;size:64"`
	Hostname       string    `gorm:"size:128"`
	Status         string    `gorm:"size:16;index"`
	CurrentMeeting string    `gorm:"size:32"`
	StartedAt      time.Time
	LastActivity   time.Time `gorm:"index"`
}
