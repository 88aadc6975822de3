// Package meeting provides job record operations for uploaded meetings.
package meeting

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/minutes/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a meeting does not exist or is not owned by the caller.
	ErrNotFound = errors.New("meeting: not found")
	// ErrInvalidTransition is returned for a status change the state machine rejects.
	ErrInvalidTransition = errors.New("meeting: invalid status transition")
)

// CreateOpts holds parameters for creating a new meeting.
type CreateOpts struct {
	OwnerID   string
	Title     string
	AudioPath string // blob store key of the uploaded file
}

// ListFilters holds optional filters for listing meetings.
type ListFilters struct {
	Status string
	Limit  int
}

// ValidTransitions maps each status to its valid next statuses. A failed
// meeting may be processed again from scratch.
var ValidTransitions = map[string][]string{
	models.StatusPending:    {models.StatusProcessing, models.StatusFailed},
	models.StatusProcessing: {models.StatusCompleted, models.StatusFailed},
	models.StatusFailed:     {models.StatusProcessing, models.StatusCompleted, models.StatusFailed},
}

// GenerateID creates a meeting ID in mtg-xxxxxxxx format (8-char hex).
func GenerateID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("meeting: generate ID: %w", err)
	}
	return "mtg-" + hex.EncodeToString(b), nil
}

// Create inserts a new meeting in processing state, ready to be handed to
// the pipeline.
func Create(db *gorm.DB, opts CreateOpts) (*models.Meeting, error) {
	if opts.OwnerID == "" {
		return nil, fmt.Errorf("meeting: owner is required")
	}
	if opts.AudioPath == "" {
		return nil, fmt.Errorf("meeting: audio path is required")
	}
	if opts.Title == "" {
		opts.Title = opts.AudioPath
	}

	id, err := generateUniqueID(db)
	if err != nil {
		return nil, err
	}

	m := models.Meeting{
		ID:        id,
		OwnerID:   opts.OwnerID,
		Title:     opts.Title,
		AudioPath: opts.AudioPath,
		Status:    models.StatusProcessing,
	}
	if err := db.Create(&m).Error; err != nil {
		return nil, fmt.Errorf("meeting: create: %w", err)
	}
	return &m, nil
}

// Get returns a meeting owned by ownerID with its action items in order.
func Get(db *gorm.DB, ownerID, id string) (*models.Meeting, error) {
	var m models.Meeting
	err := db.Preload("ActionItems", orderedItems).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("meeting: get %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("meeting: get %s: %w", id, err)
	}
	return &m, nil
}

// Load returns a meeting regardless of owner. Only the pipeline and
// operator tooling use it.
func Load(db *gorm.DB, id string) (*models.Meeting, error) {
	var m models.Meeting
	if err := db.Preload("ActionItems", orderedItems).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("meeting: load %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("meeting: load %s: %w", id, err)
	}
	return &m, nil
}

// List returns the owner's meetings, newest first.
func List(db *gorm.DB, ownerID string, filters ListFilters) ([]models.Meeting, error) {
	q := db.Model(&models.Meeting{}).Where("owner_id = ?", ownerID)
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}

	var meetings []models.Meeting
	if err := q.Order("created_at DESC, id DESC").Find(&meetings).Error; err != nil {
		return nil, fmt.Errorf("meeting: list: %w", err)
	}
	return meetings, nil
}

// Recent returns up to n meetings for a dashboard: everything still
// processing first, then the latest completed ones to fill the remainder.
func Recent(db *gorm.DB, ownerID string, n int) ([]models.Meeting, error) {
	if n <= 0 {
		return nil, nil
	}
	processing, err := List(db, ownerID, ListFilters{Status: models.StatusProcessing, Limit: n})
	if err != nil {
		return nil, err
	}
	if len(processing) >= n {
		return processing, nil
	}
	completed, err := List(db, ownerID, ListFilters{Status: models.StatusCompleted, Limit: n - len(processing)})
	if err != nil {
		return nil, err
	}
	return append(processing, completed...), nil
}

// Delete removes an owned meeting and its action items. The caller is
// responsible for removing the audio blob first.
func Delete(db *gorm.DB, ownerID, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Meeting{}).Where("id = ? AND owner_id = ?", id, ownerID).Count(&count).Error; err != nil {
			return fmt.Errorf("meeting: delete %s: %w", id, err)
		}
		if count == 0 {
			return fmt.Errorf("meeting: delete %s: %w", id, ErrNotFound)
		}
		if err := tx.Where("meeting_id = ?", id).Delete(&models.ActionItem{}).Error; err != nil {
			return fmt.Errorf("meeting: delete action items of %s: %w", id, err)
		}
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.Meeting{}).Error; err != nil {
			return fmt.Errorf("meeting: delete %s: %w", id, err)
		}
		return nil
	})
}

// Transition moves a meeting to a new status, validated against
// ValidTransitions.
func Transition(db *gorm.DB, id, to string) error {
	var m models.Meeting
	if err := db.Select("id", "status").Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("meeting: transition %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("meeting: get %s for transition: %w", id, err)
	}
	if !IsValidTransition(m.Status, to) {
		return fmt.Errorf("%w: %s from %q to %q; valid transitions: %v",
			ErrInvalidTransition, id, m.Status, to, ValidTransitions[m.Status])
	}

	updates := map[string]interface{}{"status": to}
	if to == models.StatusCompleted {
		updates["completed_at"] = time.Now()
	}
	if err := db.Model(&models.Meeting{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("meeting: transition %s: %w", id, err)
	}
	return nil
}

// IsValidTransition reports whether a status change is allowed.
func IsValidTransition(from, to string) bool {
	for _, v := range ValidTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}

// ResetOutput clears transcript, summary, and action items before a run.
func ResetOutput(db *gorm.DB, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("meeting_id = ?", id).Delete(&models.ActionItem{}).Error; err != nil {
			return fmt.Errorf("meeting: reset action items of %s: %w", id, err)
		}
		res := tx.Model(&models.Meeting{}).Where("id = ?", id).Updates(map[string]interface{}{
			"transcription": "",
			"summary":       nil,
			"completed_at":  nil,
		})
		if res.Error != nil {
			return fmt.Errorf("meeting: reset %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("meeting: reset %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// SaveTranscript persists the accumulated transcript as a checkpoint.
func SaveTranscript(db *gorm.DB, id, text string) error {
	res := db.Model(&models.Meeting{}).Where("id = ?", id).Update("transcription", text)
	if res.Error != nil {
		return fmt.Errorf("meeting: save transcript %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("meeting: save transcript %s: %w", id, ErrNotFound)
	}
	return nil
}

// Complete stores the summary and action items and marks the meeting
// completed in one transaction. Blank items are skipped; order is kept.
func Complete(db *gorm.DB, id, summary string, items []string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var m models.Meeting
		if err := tx.Select("id", "status").Where("id = ?", id).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("meeting: complete %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("meeting: get %s for complete: %w", id, err)
		}
		if !IsValidTransition(m.Status, models.StatusCompleted) {
			return fmt.Errorf("%w: %s from %q to %q", ErrInvalidTransition, id, m.Status, models.StatusCompleted)
		}

		rows := make([]models.ActionItem, 0, len(items))
		for _, item := range items {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			rows = append(rows, models.ActionItem{MeetingID: id, Position: len(rows), Content: item})
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("meeting: create action items for %s: %w", id, err)
			}
		}

		now := time.Now()
		if err := tx.Model(&models.Meeting{}).Where("id = ?", id).Updates(map[string]interface{}{
			"summary":      summary,
			"status":       models.StatusCompleted,
			"completed_at": now,
		}).Error; err != nil {
			return fmt.Errorf("meeting: complete %s: %w", id, err)
		}
		return nil
	})
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// generateUniqueID generates an ID and retries once on collision.
func generateUniqueID(db *gorm.DB) (string, error) {
	for range 2 {
		id, err := GenerateID()
		if err != nil {
			return "", err
		}
		var count int64
		if err := db.Model(&models.Meeting{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return "", fmt.Errorf("meeting: check ID uniqueness: %w", err)
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("meeting: failed to generate unique ID after retries")
}
