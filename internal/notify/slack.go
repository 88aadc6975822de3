package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cenkalti/backoff/v4"
	"github.com/slack-go/slack"
)

// Slack posts events to an incoming webhook.
type Slack struct {
	url  string
	post func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlack returns a Slack notifier for the webhook URL.
func NewSlack(url string) *Slack {
	return &Slack{url: url, post: slack.PostWebhookContext}
}

// Notify posts ev, retrying transient failures.
func (s *Slack) Notify(ctx context.Context, ev Event) error {
	msg := slackMessage(ev)
	err := retry(ctx, func() error {
		err := s.post(ctx, s.url, msg)
		var sce slack.StatusCodeError
		if errors.As(err, &sce) && sce.Code < 500 && sce.Code != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("notify: slack %s: %w", ev.MeetingID, err)
	}
	return nil
}

func slackMessage(ev Event) *slack.WebhookMessage {
	att := slack.Attachment{
		Title:  ev.Title,
		Footer: ev.MeetingID,
		Color:  "good",
	}
	if ev.Status == "failed" {
		att.Color = "danger"
		att.Text = ev.Error
	} else {
		att.Text = ev.Summary
		if len(ev.ActionItems) > 0 {
			att.Fields = append(att.Fields, slack.AttachmentField{
				Title: "Action items",
				Value: bulletList(ev.ActionItems),
			})
		}
		att.Fields = append(att.Fields, slack.AttachmentField{
			Title: "Items",
			Value: strconv.Itoa(len(ev.ActionItems)),
			Short: true,
		})
	}
	return &slack.WebhookMessage{
		Text:        headline(ev),
		Attachments: []slack.Attachment{att},
	}
}

func bulletList(items []string) string {
	var out string
	for i, it := range items {
		if i > 0 {
			out += "\n"
		}
		out += "• " + it
	}
	return out
}
