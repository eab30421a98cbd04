package claude

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/pulseroute/internal/triage"
)

func TestToSDKParams(t *testing.T) {
	t.Parallel()

	p := toSDKParams("claude-test", &triage.CompletionRequest{
		System:      "be terse",
		Prompt:      "chest pain",
		MaxTokens:   1024,
		Temperature: 0.2,
	})

	if p.Model != anthropic.Model("claude-test") {
		t.Errorf("model = %q, want %q", p.Model, "claude-test")
	}
	if p.MaxTokens != 1024 {
		t.Errorf("max tokens = %d, want 1024", p.MaxTokens)
	}
	if !p.Temperature.Valid() || p.Temperature.Value != 0.2 {
		t.Errorf("temperature = %v, want 0.2", p.Temperature)
	}
	if len(p.System) != 1 || p.System[0].Text != "be terse" {
		t.Errorf("system = %+v, want single block %q", p.System, "be terse")
	}
	if len(p.Messages) != 1 {
		t.Fatalf("messages len = %d, want 1", len(p.Messages))
	}
	if p.Messages[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("role = %q, want user", p.Messages[0].Role)
	}
	if len(p.Messages[0].Content) != 1 || p.Messages[0].Content[0].OfText == nil {
		t.Fatal("expected a single text block")
	}
	if p.Messages[0].Content[0].OfText.Text != "chest pain" {
		t.Errorf("text = %q, want %q", p.Messages[0].Content[0].OfText.Text, "chest pain")
	}
}

func TestToSDKParams_NoSystem(t *testing.T) {
	t.Parallel()

	p := toSDKParams("m", &triage.CompletionRequest{Prompt: "x", MaxTokens: 10})
	if len(p.System) != 0 {
		t.Errorf("system = %+v, want empty", p.System)
	}
}

func TestFromSDKResponse_JoinsTextBlocks(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Model: anthropic.Model("claude-test"),
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: `{"severity_score":`},
			{Type: "thinking"},
			{Type: "text", Text: `4}`},
		},
		StopReason: anthropic.StopReasonEndTurn,
		Usage:      anthropic.Usage{InputTokens: 1234, OutputTokens: 567},
	}

	got := fromSDKResponse(msg)

	if got.Text != `{"severity_score":4}` {
		t.Errorf("text = %q", got.Text)
	}
	if got.Model != "claude-test" {
		t.Errorf("model = %q, want %q", got.Model, "claude-test")
	}
	if got.Usage.InputTokens != 1234 || got.Usage.OutputTokens != 567 {
		t.Errorf("usage = %+v, want 1234/567", got.Usage)
	}
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("X-Api-Key"))
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"severity_score\": 5}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 42, "output_tokens": 7}
		}`)
	}))
	defer srv.Close()

	c := New("test-key", "claude-test", option.WithBaseURL(srv.URL))
	resp, err := c.Complete(context.Background(), &triage.CompletionRequest{
		System:    "sys",
		Prompt:    "user",
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != `{"severity_score": 5}` {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Usage.InputTokens != 42 || resp.Usage.OutputTokens != 7 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if gotBody["model"] != "claude-test" {
		t.Errorf("request model = %v", gotBody["model"])
	}
}

func TestComplete_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
	}))
	defer srv.Close()

	c := New("k", "m", option.WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), &triage.CompletionRequest{Prompt: "x", MaxTokens: 8})

	var gwErr *triage.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("err = %v, want *triage.GatewayError", err)
	}
	if gwErr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", gwErr.Status)
	}
}
