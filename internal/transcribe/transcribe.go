// Package transcribe sends audio segments to a speech-to-text API.
package transcribe

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/zulandar/minutes/internal/config"
)

// Client transcribes one audio segment at a time.
type Client struct {
	api   *openai.Client
	model string
}

// New builds a Client from the OpenAI config.
func New(cfg config.OpenAIConfig) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.TranscriptionModel
	if model == "" {
		model = openai.Whisper1
	}
	return &Client{api: openai.NewClientWithConfig(oc), model: model}
}

// Transcribe uploads audio under name and returns the trimmed plain-text
// result. Errors from the API are returned unchanged; an empty result is
// valid for near-silent audio.
func (c *Client) Transcribe(ctx context.Context, name string, audio []byte) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: name,
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
