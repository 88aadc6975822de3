// Package summarize asks a language model for a meeting summary and a list
// of action items.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/zulandar/minutes/internal/config"
)

// Prompts sent with every request.
const (
	SystemPrompt = "You exist to summarize meetings and extract action items. Always return valid JSON."
	UserPrompt   = "You are a professional minute taker. Analyze the following meeting transcript. " +
		"Provide a concise summary and a list of actionable items. Return the response as a JSON object " +
		"with keys 'summary' (string) and 'action_items' (array of strings).\n\nTranscript:\n"
)

// TruncationMarker is appended to transcripts cut at the character budget.
const TruncationMarker = "..."

// Failure reasons reported by Reason.
const (
	ReasonMalformed = "malformed_response"
	ReasonAPI       = "api_error"
)

// ErrMalformedResponse is wrapped when the model reply cannot be parsed as JSON.
var ErrMalformedResponse = errors.New("summarize: malformed response")

// APIError wraps a transport or API failure.
type APIError struct {
	Err error
}

func (e *APIError) Error() string { return "summarize: api request failed: " + e.Err.Error() }

func (e *APIError) Unwrap() error { return e.Err }

// Notes is the structured result of a summarization.
type Notes struct {
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
}

// Client calls the chat completion API in JSON mode.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	maxChars  int
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
	c := &Client{
		api:       openai.NewClientWithConfig(oc),
		model:     cfg.SummaryModel,
		maxTokens: cfg.MaxTokens,
		maxChars:  cfg.MaxTranscriptChars,
	}
	if c.model == "" {
		c.model = openai.GPT4oMini
	}
	if c.maxTokens == 0 {
		c.maxTokens = 1000
	}
	if c.maxChars == 0 {
		c.maxChars = 10000
	}
	return c
}

// Truncate cuts transcript to maxChars characters plus TruncationMarker.
func Truncate(transcript string, maxChars int) string {
	if maxChars <= 0 {
		return transcript
	}
	runes := []rune(transcript)
	if len(runes) <= maxChars {
		return transcript
	}
	return string(runes[:maxChars]) + TruncationMarker
}

// Summarize sends transcript to the model and parses its JSON reply.
func (c *Client) Summarize(ctx context.Context, transcript string) (Notes, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt + Truncate(transcript, c.maxChars)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return Notes{}, &APIError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return Notes{}, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}
	return Parse(resp.Choices[0].Message.Content)
}

// Parse decodes a model reply into Notes. Only a reply that is not JSON is
// malformed. A non-string summary reads as empty, and action_items keeps the
// non-blank strings of an array and ignores any other shape.
func Parse(content string) (Notes, error) {
	var reply any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &reply); err != nil {
		return Notes{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	obj, ok := reply.(map[string]any)
	if !ok {
		return Notes{}, nil
	}

	var n Notes
	if s, ok := obj["summary"].(string); ok {
		n.Summary = strings.TrimSpace(s)
	}
	if items, ok := obj["action_items"].([]any); ok {
		for _, it := range items {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				n.ActionItems = append(n.ActionItems, strings.TrimSpace(s))
			}
		}
	}
	return n, nil
}

// Reason classifies a Summarize error for logs and metrics.
func Reason(err error) string {
	if errors.Is(err, ErrMalformedResponse) {
		return ReasonMalformed
	}
	return ReasonAPI
}
