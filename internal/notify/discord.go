package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	colorGreen = 0x2ecc71
	colorRed   = 0xe74c3c

	// maxEmbedDescription is Discord's embed description limit.
	maxEmbedDescription = 4096
)

// webhookSession abstracts the discordgo.Session method we use, enabling test mocks.
type webhookSession interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts events through a webhook.
type Discord struct {
	sess  webhookSession
	id    string
	token string
}

// NewDiscord parses a https://discord.com/api/webhooks/{id}/{token} URL.
func NewDiscord(webhookURL string) (*Discord, error) {
	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	dg, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("notify: discord session: %w", err)
	}
	return &Discord{sess: dg, id: id, token: token}, nil
}

// ParseWebhookURL extracts the webhook id and token.
func ParseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("notify: parse discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("notify: discord webhook url %q has no /webhooks/{id}/{token}", raw)
}

// Notify executes the webhook with an embed for ev.
func (d *Discord) Notify(ctx context.Context, ev Event) error {
	params := discordParams(ev)
	err := retry(ctx, func() error {
		_, err := d.sess.WebhookExecute(d.id, d.token, false, params, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return fmt.Errorf("notify: discord %s: %w", ev.MeetingID, err)
	}
	return nil
}

func discordParams(ev Event) *discordgo.WebhookParams {
	embed := &discordgo.MessageEmbed{
		Title:  ev.Title,
		Color:  colorGreen,
		Footer: &discordgo.MessageEmbedFooter{Text: ev.MeetingID},
	}
	if ev.Status == "failed" {
		embed.Color = colorRed
		embed.Description = ev.Error
	} else {
		embed.Description = ev.Summary
		if len(ev.ActionItems) > 0 {
			embed.Fields = []*discordgo.MessageEmbedField{{
				Name:  "Action items",
				Value: truncate(bulletList(ev.ActionItems), 1024),
			}}
		}
	}
	embed.Description = truncate(embed.Description, maxEmbedDescription)
	return &discordgo.WebhookParams{
		Content: headline(ev),
		Embeds:  []*discordgo.MessageEmbed{embed},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
