// Package notify posts meeting completion and failure events to chat
// webhooks. Delivery is best-effort.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/minutes/internal/config"
	"github.com/zulandar/minutes/internal/logger"
)

// maxRetries is the number of extra delivery attempts per webhook.
const maxRetries = 3

// Event describes a meeting reaching a terminal status.
type Event struct {
	MeetingID   string
	OwnerID     string
	Title       string
	Status      string // completed or failed
	Summary     string
	ActionItems []string
	Error       string // set for failed runs
}

// Notifier delivers events somewhere people will see them.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Noop drops every event.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to several notifiers, logging each failure and
// returning them joined.
type Multi struct {
	Targets []Notifier
	Log     *logrus.Entry
}

// Notify delivers ev to every target.
func (m *Multi) Notify(ctx context.Context, ev Event) error {
	log := m.Log
	if log == nil {
		log = logger.Discard()
	}
	var errs []error
	for _, t := range m.Targets {
		if err := t.Notify(ctx, ev); err != nil {
			log.WithError(err).WithField("meeting_id", ev.MeetingID).Warn("notification failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds a Notifier for the configured webhooks, or Noop when none are set.
func New(cfg config.NotifyConfig, log *logrus.Entry) (Notifier, error) {
	var targets []Notifier
	if cfg.SlackWebhookURL != "" {
		targets = append(targets, NewSlack(cfg.SlackWebhookURL))
	}
	if cfg.DiscordWebhookURL != "" {
		d, err := NewDiscord(cfg.DiscordWebhookURL)
		if err != nil {
			return nil, err
		}
		targets = append(targets, d)
	}
	if len(targets) == 0 {
		return Noop{}, nil
	}
	return &Multi{Targets: targets, Log: logger.Component(log, "notify")}, nil
}

// headline is the one-line text shared by every target.
func headline(ev Event) string {
	switch ev.Status {
	case "completed":
		return fmt.Sprintf("Meeting notes ready: %s", ev.Title)
	case "failed":
		return fmt.Sprintf("Meeting processing failed: %s", ev.Title)
	default:
		return fmt.Sprintf("Meeting %s: %s", ev.Status, ev.Title)
	}
}

// retry runs op with exponential backoff until it succeeds, returns a
// backoff.Permanent error, runs out of retries, or ctx is done.
func retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx))
}
