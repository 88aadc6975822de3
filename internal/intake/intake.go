// Package intake accepts uploaded meeting audio and removes meetings on
// request. It owns the ordering between the blob store, the job record and
// the work queue.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/minutes/internal/blob"
	"github.com/zulandar/minutes/internal/config"
	"github.com/zulandar/minutes/internal/logger"
	"github.com/zulandar/minutes/internal/meeting"
	"github.com/zulandar/minutes/internal/models"
	"github.com/zulandar/minutes/internal/queue"
	"gorm.io/gorm"
)

var (
	// ErrUnsupportedType is returned for files that are not mp3, wav or m4a.
	ErrUnsupportedType = errors.New("intake: unsupported audio type")
	// ErrTooLarge is returned for uploads over the size ceiling.
	ErrTooLarge = errors.New("intake: file too large")
)

// AllowedExtensions lists accepted upload extensions, lower case without the dot.
var AllowedExtensions = []string{"mp3", "wav", "m4a"}

// Upload is one incoming audio file.
type Upload struct {
	OwnerID  string
	Filename string
	Size     int64
	Body     io.Reader
}

// Options configures a Service.
type Options struct {
	DB       *gorm.DB
	Blobs    blob.Store
	Prefix   string
	MaxBytes int64
	Log      *logrus.Entry
}

// Service implements upload and delete.
type Service struct {
	db       *gorm.DB
	blobs    blob.Store
	prefix   string
	maxBytes int64
	log      *logrus.Entry
}

// New returns a Service. Zero Prefix and MaxBytes take the config defaults.
func New(opts Options) *Service {
	if opts.Prefix == "" {
		opts.Prefix = "meetings"
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = config.MaxUploadBytes
	}
	return &Service{
		db:       opts.DB,
		blobs:    opts.Blobs,
		prefix:   strings.Trim(opts.Prefix, "/"),
		maxBytes: opts.MaxBytes,
		log:      logger.Component(opts.Log, "intake"),
	}
}

// Extension returns the lower-cased extension of name if it is accepted.
func Extension(name string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, a := range AllowedExtensions {
		if ext == a {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}

// Accept validates and stores an upload, records the meeting in processing
// state and enqueues it for the pipeline.
func (s *Service) Accept(ctx context.Context, up Upload) (*models.Meeting, error) {
	if up.OwnerID == "" {
		return nil, fmt.Errorf("intake: owner is required")
	}
	ext, err := Extension(up.Filename)
	if err != nil {
		return nil, err
	}
	if up.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, up.Size, s.maxBytes)
	}

	key := path.Join(s.prefix, uuid.NewString()+"."+ext)
	if _, err := s.blobs.Put(ctx, key, up.Body, up.Size); err != nil {
		return nil, fmt.Errorf("intake: store %s: %w", key, err)
	}

	m, err := meeting.Create(s.db, meeting.CreateOpts{
		OwnerID:   up.OwnerID,
		Title:     filepath.Base(up.Filename),
		AudioPath: key,
	})
	if err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.log.WithError(derr).WithField("key", key).Warn("orphaned upload")
		}
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"meeting_id": m.ID, "owner_id": m.OwnerID})
	if _, err := queue.Enqueue(s.db, m.ID); err != nil {
		if terr := meeting.Transition(s.db, m.ID, models.StatusFailed); terr != nil {
			log.WithError(terr).Error("mark unqueued meeting failed")
		}
		return nil, fmt.Errorf("intake: enqueue %s: %w", m.ID, err)
	}
	log.WithField("key", key).Info("meeting accepted")
	return m, nil
}

// Delete removes an owned meeting and its audio. A blob that is already
// gone does not block removal of the record.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	m, err := meeting.Get(s.db, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, m.AudioPath); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("intake: delete audio of %s: %w", id, err)
	}
	if err := meeting.Delete(s.db, ownerID, id); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"meeting_id": id, "owner_id": ownerID}).Info("meeting deleted")
	return nil
}
