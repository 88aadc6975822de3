package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zulandar/minutes/internal/config"
)

type chatRequest struct {
	Model          string `json:"model"`
	MaxTokens      int    `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func newTestClient(t *testing.T, cfg config.OpenAIConfig, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.APIKey = "sk-test"
	cfg.BaseURL = srv.URL + "/v1"
	return New(cfg)
}

func TestSummarize_ParsesNotes(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, config.OpenAIConfig{}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatReply(`{"summary":" Team agreed on Q3 scope. ","action_items":["Alice drafts plan","Bob books room"]}`))
	})

	notes, err := c.Summarize(context.Background(), "we talked about Q3")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if notes.Summary != "Team agreed on Q3 scope." {
		t.Errorf("Summary = %q", notes.Summary)
	}
	if len(notes.ActionItems) != 2 || notes.ActionItems[0] != "Alice drafts plan" || notes.ActionItems[1] != "Bob books room" {
		t.Errorf("ActionItems = %v", notes.ActionItems)
	}

	if got.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", got.Model)
	}
	if got.MaxTokens != 1000 {
		t.Errorf("max_tokens = %d, want 1000", got.MaxTokens)
	}
	if got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %q, want json_object", got.ResponseFormat.Type)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != SystemPrompt {
		t.Errorf("system message = %+v", got.Messages[0])
	}
	if got.Messages[1].Content != UserPrompt+"we talked about Q3" {
		t.Errorf("user message = %q", got.Messages[1].Content)
	}
}

func TestSummarize_TruncatesLongTranscript(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, config.OpenAIConfig{MaxTranscriptChars: 10}, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, chatReply(`{"summary":"s","action_items":[]}`))
	})

	if _, err := c.Summarize(context.Background(), strings.Repeat("a", 25)); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	want := UserPrompt + strings.Repeat("a", 10) + TruncationMarker
	if got.Messages[1].Content != want {
		t.Errorf("user message = %q, want %q", got.Messages[1].Content, want)
	}
}

func TestSummarize_MalformedJSON(t *testing.T) {
	c := newTestClient(t, config.OpenAIConfig{}, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, chatReply(`Here is your summary: not json`))
	})
	_, err := c.Summarize(context.Background(), "t")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
	if Reason(err) != ReasonMalformed {
		t.Errorf("Reason = %q, want %q", Reason(err), ReasonMalformed)
	}
}

func TestSummarize_APIFailure(t *testing.T) {
	c := newTestClient(t, config.OpenAIConfig{}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"upstream down","type":"server_error"}}`)
	})
	_, err := c.Summarize(context.Background(), "t")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v (%T), want *APIError", err, err)
	}
	if errors.Is(err, ErrMalformedResponse) {
		t.Error("API failure classified as malformed")
	}
	if Reason(err) != ReasonAPI {
		t.Errorf("Reason = %q, want %q", Reason(err), ReasonAPI)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"abcdefghijk", 10, "abcdefghij..."},
		{"héllo wörld", 5, "héllo..."},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	n, err := Parse(`{"summary":"x"}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Summary != "x" || len(n.ActionItems) != 0 {
		t.Errorf("Parse = %+v", n)
	}
	if _, err := Parse(`not json`); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("non-JSON err = %v, want ErrMalformedResponse", err)
	}
}

func TestParse_WrongShapesKeepSummary(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantSum   string
		wantItems []string
	}{
		{"items is a string", `{"summary":"Team agreed on Q3 plan.","action_items":"none"}`, "Team agreed on Q3 plan.", nil},
		{"items are objects", `{"summary":"Plan set.","action_items":[{"task":"x"}]}`, "Plan set.", nil},
		{"mixed item types", `{"summary":"Plan set.","action_items":["a", null, 3, " ", " b "]}`, "Plan set.", []string{"a", "b"}},
		{"summary is a number", `{"summary":42,"action_items":["a"]}`, "", []string{"a"}},
		{"top level array", `["a","b"]`, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Parse(tt.content)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if n.Summary != tt.wantSum {
				t.Errorf("Summary = %q, want %q", n.Summary, tt.wantSum)
			}
			if len(n.ActionItems) != len(tt.wantItems) {
				t.Fatalf("ActionItems = %q, want %q", n.ActionItems, tt.wantItems)
			}
			for i := range tt.wantItems {
				if n.ActionItems[i] != tt.wantItems[i] {
					t.Errorf("ActionItems[%d] = %q, want %q", i, n.ActionItems[i], tt.wantItems[i])
				}
			}
		})
	}
}
