// Package queue is a database-backed work queue delivering meetings to
// pipeline workers at least once.
package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zulandar/minutes/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrEmpty is returned by Claim when nothing is ready.
var ErrEmpty = errors.New("queue: empty")

// RetryPolicy controls redelivery after a failed attempt.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries three times starting at 30s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 30 * time.Second,
	MaxInterval:     10 * time.Minute,
}

// Delay returns how long to wait before the next delivery after the given
// number of attempts.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Enqueue schedules meetingID for processing. If the meeting already has a
// queued or claimed item, that item is returned instead.
func Enqueue(db *gorm.DB, meetingID string) (*models.QueueItem, error) {
	if meetingID == "" {
		return nil, fmt.Errorf("queue: meetingID is required")
	}

	var item models.QueueItem
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("meeting_id = ? AND status IN ?", meetingID, []string{models.QueueQueued, models.QueueClaimed}).
			Limit(1).Find(&item)
		if res.Error != nil {
			return fmt.Errorf("queue: check existing for %s: %w", meetingID, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		item = models.QueueItem{
			MeetingID:   meetingID,
			Status:      models.QueueQueued,
			AvailableAt: time.Now(),
		}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("queue: enqueue %s: %w", meetingID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Claim atomically takes the oldest ready item for workerID using
// SELECT ... FOR UPDATE SKIP LOCKED, and marks the worker busy with it.
func Claim(db *gorm.DB, workerID string) (*models.QueueItem, error) {
	if workerID == "" {
		return nil, fmt.Errorf("queue: workerID is required")
	}

	var claimed models.QueueItem
	err := db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Where("status = ? AND available_at <= ?", models.QueueQueued, now).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Order("available_at ASC, id ASC").
			Limit(1).
			Find(&claimed)
		if result.Error != nil {
			return fmt.Errorf("queue: find ready item: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrEmpty
		}

		// The status guard keeps backends without row locks from double-claiming.
		res := tx.Model(&models.QueueItem{}).
			Where("id = ? AND status = ?", claimed.ID, models.QueueQueued).
			Updates(map[string]interface{}{
				"status":     models.QueueClaimed,
				"claimed_by": workerID,
				"claimed_at": now,
				"attempts":   gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("queue: claim item %d: %w", claimed.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrEmpty
		}
		claimed.Status = models.QueueClaimed
		claimed.ClaimedBy = workerID
		claimed.ClaimedAt = &now
		claimed.Attempts++

		if err := tx.Model(&models.Worker{}).Where("id = ?", workerID).Updates(map[string]interface{}{
			"status":          models.WorkerWorking,
			"current_meeting": claimed.MeetingID,
			"last_activity":   now,
		}).Error; err != nil {
			return fmt.Errorf("queue: update worker %s: %w", workerID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

// Ack marks a claimed item done.
func Ack(db *gorm.DB, id uint) error {
	return finish(db, id, map[string]interface{}{
		"status":     models.QueueDone,
		"last_error": "",
	})
}

// Nack records a failed attempt. The item is requeued with a backoff delay
// until policy.MaxAttempts is reached, then marked dead. It reports whether
// the item is dead.
func Nack(db *gorm.DB, id uint, cause error, policy RetryPolicy) (bool, error) {
	var item models.QueueItem
	if err := db.Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("queue: nack %d: not found", id)
		}
		return false, fmt.Errorf("queue: nack %d: %w", id, err)
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if item.Attempts >= policy.MaxAttempts {
		return true, finish(db, id, map[string]interface{}{
			"status":     models.QueueDead,
			"last_error": msg,
		})
	}
	return false, finish(db, id, map[string]interface{}{
		"status":       models.QueueQueued,
		"available_at": time.Now().Add(policy.Delay(item.Attempts)),
		"claimed_by":   "",
		"claimed_at":   nil,
		"last_error":   msg,
	})
}

// Bury marks an item dead without further retries, for failures that a
// redelivery cannot fix.
func Bury(db *gorm.DB, id uint, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return finish(db, id, map[string]interface{}{
		"status":     models.QueueDead,
		"last_error": msg,
	})
}

// Release returns a claimed item to the queue without counting the attempt.
// Workers call it when shutting down mid-run.
func Release(db *gorm.DB, id uint) error {
	return finish(db, id, map[string]interface{}{
		"status":       models.QueueQueued,
		"available_at": time.Now(),
		"claimed_by":   "",
		"claimed_at":   nil,
		"attempts":     gorm.Expr("CASE WHEN attempts > 0 THEN attempts - 1 ELSE 0 END"),
	})
}

// RequeueStale returns claimed items to the queue when the claiming worker
// has not sent a heartbeat since cutoff or no longer exists. It returns the
// number of items requeued.
func RequeueStale(db *gorm.DB, cutoff time.Time) (int64, error) {
	var n int64
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Worker{}).
			Where("status <> ? AND last_activity < ?", models.WorkerDead, cutoff).
			Updates(map[string]interface{}{"status": models.WorkerDead, "current_meeting": ""}).Error; err != nil {
			return fmt.Errorf("queue: mark stale workers: %w", err)
		}

		live := tx.Model(&models.Worker{}).Select("id").Where("status <> ?", models.WorkerDead)
		res := tx.Model(&models.QueueItem{}).
			Where("status = ? AND claimed_by NOT IN (?)", models.QueueClaimed, live).
			Updates(map[string]interface{}{
				"status":       models.QueueQueued,
				"available_at": time.Now(),
				"claimed_by":   "",
				"claimed_at":   nil,
			})
		if res.Error != nil {
			return fmt.Errorf("queue: requeue stale items: %w", res.Error)
		}
		n = res.RowsAffected
		return nil
	})
	return n, err
}

// Stats returns item counts by status.
func Stats(db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.QueueItem{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("queue: stats: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// finish applies updates to a claimed item and frees its worker.
func finish(db *gorm.DB, id uint, updates map[string]interface{}) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var item models.QueueItem
		if err := tx.Where("id = ?", id).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("queue: item %d not found", id)
			}
			return fmt.Errorf("queue: get item %d: %w", id, err)
		}
		if err := tx.Model(&models.QueueItem{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("queue: update item %d: %w", id, err)
		}
		if item.ClaimedBy != "" {
			if err := tx.Model(&models.Worker{}).
				Where("id = ? AND current_meeting = ?", item.ClaimedBy, item.MeetingID).
				Updates(map[string]interface{}{"status": models.WorkerIdle, "current_meeting": ""}).Error; err != nil {
				return fmt.Errorf("queue: free worker %s: %w", item.ClaimedBy, err)
			}
		}
		return nil
	})
}
