package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/minutes/internal/models"
	"gorm.io/gorm"
)

// DefaultHeartbeatInterval is the default interval between heartbeat updates.
const DefaultHeartbeatInterval = 10 * time.Second

// GenerateID creates a worker ID in wkr-xxxxxxxx format.
func GenerateID() string {
	return "wkr-" + uuid.NewString()[:8]
}

// Register creates a worker record with status=idle.
func Register(db *gorm.DB, hostname string) (*models.Worker, error) {
	now := time.Now()
	w := models.Worker{
		ID:           GenerateID(),
		Hostname:     hostname,
		Status:       models.WorkerIdle,
		StartedAt:    now,
		LastActivity: now,
	}
	if err := db.Create(&w).Error; err != nil {
		return nil, fmt.Errorf("worker: register: %w", err)
	}
	return &w, nil
}

// Deregister marks a worker dead.
func Deregister(db *gorm.DB, id string) error {
	result := db.Model(&models.Worker{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          models.WorkerDead,
		"current_meeting": "",
	})
	if result.Error != nil {
		return fmt.Errorf("worker: deregister %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("worker: deregister %s: not found", id)
	}
	return nil
}

// List returns all workers, most recently active first.
func List(db *gorm.DB) ([]models.Worker, error) {
	var ws []models.Worker
	if err := db.Order("last_activity DESC").Find(&ws).Error; err != nil {
		return nil, fmt.Errorf("worker: list: %w", err)
	}
	return ws, nil
}

// touch records a heartbeat for workerID.
func touch(db *gorm.DB, workerID string) error {
	result := db.Model(&models.Worker{}).Where("id = ?", workerID).Update("last_activity", time.Now())
	if result.Error != nil {
		return fmt.Errorf("worker: heartbeat %s: %w", workerID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("worker: heartbeat %s: worker not found", workerID)
	}
	return nil
}

// StartHeartbeat touches the worker's last_activity every interval until ctx
// is done. A failed update is reported on the returned channel and the next
// tick tries again, so a transient database error does not let the watchdog
// take over a claim that is still being worked. Reports are dropped while an
// earlier one is unread.
func StartHeartbeat(ctx context.Context, db *gorm.DB, workerID string, interval time.Duration) <-chan error {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	errCh := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := touch(db, workerID); err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
			}
		}
	}()

	return errCh
}
