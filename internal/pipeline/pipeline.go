// Package pipeline turns an uploaded recording into a transcript, a summary,
// and action items.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zulandar/minutes/internal/blob"
	"github.com/zulandar/minutes/internal/logger"
	"github.com/zulandar/minutes/internal/meeting"
	"github.com/zulandar/minutes/internal/metrics"
	"github.com/zulandar/minutes/internal/models"
	"github.com/zulandar/minutes/internal/notify"
	"github.com/zulandar/minutes/internal/summarize"
	"github.com/zulandar/minutes/internal/transcode"
	"gorm.io/gorm"
)

// Fallback summaries stored when summarization does not produce one.
const (
	FallbackMalformed = "Summary could not be generated due to a formatting error."
	FallbackAPI       = "Summary could not be generated due to an API error."
	FallbackEmpty     = "Summary could not be generated."
)

// DefaultSegmentSeconds is the chunk length used when Deps leaves it unset.
const DefaultSegmentSeconds = 600

// Transcoder normalizes and splits audio files on local disk.
type Transcoder interface {
	Normalize(ctx context.Context, input, outDir string) (string, error)
	Chunk(ctx context.Context, input, outDir string, segmentSeconds int) ([]transcode.Segment, error)
}

// Transcriber turns one audio segment into text.
type Transcriber interface {
	Transcribe(ctx context.Context, name string, audio []byte) (string, error)
}

// Summarizer extracts a summary and action items from a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (summarize.Notes, error)
}

// Deps holds the collaborators of an Orchestrator.
type Deps struct {
	DB          *gorm.DB
	Blobs       blob.Store
	Transcoder  Transcoder
	Transcriber Transcriber
	Summarizer  Summarizer
	Notifier    notify.Notifier // optional
	Log         *logrus.Entry   // optional

	SegmentSeconds int    // defaults to DefaultSegmentSeconds
	TempDir        string // parent for scratch directories; os.TempDir() if empty
}

// Orchestrator runs the pipeline for one meeting at a time per call.
// Concurrent calls for different meetings are safe.
type Orchestrator struct {
	deps Deps
	log  *logrus.Entry
}

// New returns an Orchestrator. DB, Blobs, Transcoder, Transcriber, and
// Summarizer are required.
func New(deps Deps) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}
	if deps.SegmentSeconds <= 0 {
		deps.SegmentSeconds = DefaultSegmentSeconds
	}
	return &Orchestrator{deps: deps, log: logger.Component(deps.Log, "pipeline")}
}

// Process runs every stage for meetingID. Fatal failures mark the meeting
// failed and return a *Error. A cancelled ctx returns ctx.Err() and leaves
// the meeting in processing so it can be redelivered. Processing a
// completed meeting is a no-op.
func (o *Orchestrator) Process(ctx context.Context, meetingID string) error {
	done := metrics.JobStarted()
	defer done()

	log := o.log.WithField("meeting_id", meetingID)
	m, err := meeting.Load(o.deps.DB, meetingID)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if m.Status == models.StatusCompleted {
		log.Info("meeting already completed, skipping")
		return nil
	}

	ok, err := o.deps.Blobs.Exists(ctx, m.AudioPath)
	if err != nil {
		if ctx.Err() != nil {
			return o.abandon(ctx, log)
		}
		return o.fail(ctx, log, m, FetchFailed, err)
	}
	if !ok {
		return o.fail(ctx, log, m, SourceMissing, errSourceAbsent)
	}

	if m.Status != models.StatusProcessing {
		if err := meeting.Transition(o.deps.DB, m.ID, models.StatusProcessing); err != nil {
			return o.fail(ctx, log, m, PersistFailed, err)
		}
	}
	if err := meeting.ResetOutput(o.deps.DB, m.ID); err != nil {
		return o.fail(ctx, log, m, PersistFailed, err)
	}
	log.WithField("audio_path", m.AudioPath).Info("processing meeting")

	scratch, err := os.MkdirTemp(o.deps.TempDir, "minutes-"+m.ID+"-")
	if err != nil {
		return o.fail(ctx, log, m, FetchFailed, err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.WithError(err).Warn("remove scratch directory")
		}
	}()

	source, err := o.fetch(ctx, m.AudioPath, scratch)
	if err != nil {
		if ctx.Err() != nil {
			return o.abandon(ctx, log)
		}
		if errors.Is(err, blob.ErrNotFound) {
			return o.fail(ctx, log, m, SourceMissing, err)
		}
		return o.fail(ctx, log, m, FetchFailed, err)
	}

	start := time.Now()
	normalized, err := o.deps.Transcoder.Normalize(ctx, source, scratch)
	metrics.ObserveStage("normalize", start)
	if err != nil {
		if ctx.Err() != nil {
			return o.abandon(ctx, log)
		}
		return o.fail(ctx, log, m, NormalizeFailed, err)
	}

	start = time.Now()
	segments, err := o.deps.Transcoder.Chunk(ctx, normalized, filepath.Join(scratch, "chunks"), o.deps.SegmentSeconds)
	metrics.ObserveStage("chunk", start)
	if err != nil {
		if ctx.Err() != nil {
			return o.abandon(ctx, log)
		}
		return o.fail(ctx, log, m, ChunkFailed, err)
	}
	segments = nonEmpty(segments)
	if len(segments) == 0 {
		return o.fail(ctx, log, m, NoAudioContent, errNoSegments)
	}
	log.WithField("segments", len(segments)).Info("audio chunked")

	start = time.Now()
	transcript, err := o.transcribeAll(ctx, log, m.ID, segments)
	metrics.ObserveStage("transcribe", start)
	if err != nil {
		if ctx.Err() != nil {
			return o.abandon(ctx, log)
		}
		return o.fail(ctx, log, m, PersistFailed, err)
	}
	if transcript == "" {
		return o.fail(ctx, log, m, NoTranscription, errEmptyResult)
	}

	start = time.Now()
	notes, err := o.deps.Summarizer.Summarize(ctx, transcript)
	metrics.ObserveStage("summarize", start)
	if err != nil && ctx.Err() != nil {
		return o.abandon(ctx, log)
	}
	summary, items := o.resolveNotes(log, notes, err)

	if err := meeting.Complete(o.deps.DB, m.ID, summary, items); err != nil {
		return o.fail(ctx, log, m, PersistFailed, err)
	}
	metrics.JobFinished(metrics.OutcomeCompleted)
	log.WithField("action_items", len(items)).Info("meeting completed")

	o.notify(ctx, log, notify.Event{
		MeetingID:   m.ID,
		OwnerID:     m.OwnerID,
		Title:       m.Title,
		Status:      models.StatusCompleted,
		Summary:     summary,
		ActionItems: items,
	})
	return nil
}

// fetch copies the source blob into dir and returns the local path.
func (o *Orchestrator) fetch(ctx context.Context, key, dir string) (string, error) {
	start := time.Now()
	defer metrics.ObserveStage("fetch", start)

	rc, err := o.deps.Blobs.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	local := filepath.Join(dir, "source"+path.Ext(key))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("pipeline: create scratch file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", fmt.Errorf("pipeline: download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("pipeline: close scratch file: %w", err)
	}
	return local, nil
}

// transcribeAll transcribes segments in index order, checkpointing the
// transcript after every segment that produced text. A failing segment is
// logged and skipped. The returned error is only ever a persistence error
// or ctx.Err().
func (o *Orchestrator) transcribeAll(ctx context.Context, log *logrus.Entry, id string, segments []transcode.Segment) (string, error) {
	var b strings.Builder
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		seglog := log.WithFields(logrus.Fields{"segment": seg.Index, "bytes": seg.Size})

		audio, err := os.ReadFile(seg.Path)
		if err != nil || len(audio) == 0 {
			seglog.WithError(err).Warn("segment unreadable or empty, skipping")
			metrics.SegmentTranscribed(metrics.SegmentSkipped)
			continue
		}

		text, err := o.deps.Transcriber.Transcribe(ctx, filepath.Base(seg.Path), audio)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			seglog.WithError(err).Error("segment transcription failed, skipping")
			metrics.SegmentTranscribed(metrics.SegmentFailed)
			continue
		}
		metrics.SegmentTranscribed(metrics.SegmentOK)

		text = strings.TrimSpace(text)
		if text == "" {
			seglog.Debug("segment transcribed to nothing")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)

		if err := meeting.SaveTranscript(o.deps.DB, id, b.String()); err != nil {
			return "", err
		}
		seglog.Debug("segment transcribed")
	}
	return strings.TrimSpace(b.String()), nil
}

// resolveNotes maps a summarization result onto the summary text and
// action items to store. Failures degrade to a fallback summary.
func (o *Orchestrator) resolveNotes(log *logrus.Entry, notes summarize.Notes, err error) (string, []string) {
	if err != nil {
		reason := summarize.Reason(err)
		log.WithError(err).WithField("reason", reason).Warn("summarization failed, storing fallback")
		metrics.SummaryFallback(reason)
		if reason == summarize.ReasonMalformed {
			return FallbackMalformed, nil
		}
		return FallbackAPI, nil
	}
	summary := strings.TrimSpace(notes.Summary)
	if summary == "" {
		metrics.SummaryFallback("empty_summary")
		summary = FallbackEmpty
	}
	return summary, notes.ActionItems
}

// fail marks the meeting failed and returns the fatal error.
func (o *Orchestrator) fail(ctx context.Context, log *logrus.Entry, m *models.Meeting, kind Kind, cause error) error {
	perr := &Error{Kind: kind, MeetingID: m.ID, Err: cause}
	log.WithError(cause).WithField("kind", string(kind)).Error("meeting failed")
	metrics.JobFinished(metrics.OutcomeFailed)

	if err := meeting.Transition(o.deps.DB, m.ID, models.StatusFailed); err != nil {
		log.WithError(err).Error("mark meeting failed")
	}
	o.notify(ctx, log, notify.Event{
		MeetingID: m.ID,
		OwnerID:   m.OwnerID,
		Title:     m.Title,
		Status:    models.StatusFailed,
		Error:     string(kind),
	})
	return perr
}

// abandon leaves the meeting in processing for redelivery.
func (o *Orchestrator) abandon(ctx context.Context, log *logrus.Entry) error {
	log.WithError(ctx.Err()).Warn("processing interrupted, leaving meeting in processing")
	metrics.JobFinished(metrics.OutcomeAbandoned)
	return ctx.Err()
}

func (o *Orchestrator) notify(ctx context.Context, log *logrus.Entry, ev notify.Event) {
	if err := o.deps.Notifier.Notify(ctx, ev); err != nil {
		log.WithError(err).Warn("notification failed")
	}
}

func nonEmpty(segs []transcode.Segment) []transcode.Segment {
	out := segs[:0:0]
	for _, s := range segs {
		if s.Size > 0 {
			out = append(out, s)
		}
	}
	return out
}
