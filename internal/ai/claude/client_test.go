package claude

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/spigell/job-sift/internal/retry"
)

const messageResponse = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-5",
  "content": [
    {"type": "text", "text": "{\"score\": 8,"},
    {"type": "text", "text": "\"reasons\": [\"Go\"]}"}
  ],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 10, "output_tokens": 12}
}`

const overloadedResponse = `{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`

type capturedRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

func newTestGenerator(t *testing.T, handler http.HandlerFunc, attempts int) *Generator {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g, err := NewGenerator("test-key", "",
		WithRetry(retry.Policy{MaxAttempts: attempts}),
		WithRequestOptions(option.WithBaseURL(server.URL+"/")),
	)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	return g
}

func TestGenerateContent(t *testing.T) {
	var captured capturedRequest
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("unexpected api key header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageResponse)
	}, 1)

	out, err := g.GenerateContent(context.Background(), " score this ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out != "{\"score\": 8,\n\"reasons\": [\"Go\"]}" {
		t.Fatalf("unexpected output: %q", out)
	}
	if captured.Model != string(defaultModel) || captured.MaxTokens != defaultMaxTokens {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" || captured.Messages[0].Content[0].Text != "score this" {
		t.Fatalf("unexpected messages: %+v", captured.Messages)
	}
	if g.Model() != "claude-sonnet-4-5" {
		t.Fatalf("unexpected model %s", g.Model())
	}
}

func TestGenerateContentRetriesOverload(t *testing.T) {
	var calls atomic.Int32
	g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(statusOverloaded)
			_, _ = io.WriteString(w, overloadedResponse)
			return
		}
		_, _ = io.WriteString(w, messageResponse)
	}, 3)

	if _, err := g.GenerateContent(context.Background(), "prompt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGenerateContentDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type": "error", "error": {"type": "invalid_request_error", "message": "bad"}}`)
	}, 3)

	_, err := g.GenerateContent(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, retry.ErrAttemptsExhausted) || calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d calls (%v)", calls.Load(), err)
	}
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	if _, err := NewGenerator("  ", ""); err == nil {
		t.Fatal("expected missing key to fail")
	}
}
