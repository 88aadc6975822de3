package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal pipeline failure.
type Kind string

// Fatal failure kinds. Each marks the meeting failed.
const (
	SourceMissing   Kind = "source_missing"
	FetchFailed     Kind = "fetch_failed"
	NormalizeFailed Kind = "normalize_failed"
	ChunkFailed     Kind = "chunk_failed"
	NoAudioContent  Kind = "no_audio_content"
	NoTranscription Kind = "no_transcription"
	PersistFailed   Kind = "persist_failed"
)

var (
	errNoSegments   = errors.New("encoder produced no non-empty segments")
	errEmptyResult  = errors.New("every segment failed or transcribed to nothing")
	errSourceAbsent = errors.New("source audio is not in the blob store")
)

// Error is returned by Process for fatal failures.
type Error struct {
	Kind      Kind
	MeetingID string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline: %s: %s: %v", e.MeetingID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a pipeline error, or "" if err is not one.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Retryable reports whether redelivering the meeting could change the
// outcome. Missing sources and audio without speech fail the same way
// every time.
func Retryable(err error) bool {
	switch KindOf(err) {
	case SourceMissing, NoAudioContent, NoTranscription:
		return false
	}
	return true
}
