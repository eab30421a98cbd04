// internal/triage/llm.go
package triage

import "context"

// Provider is the interface for any LLM backend.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is a single-turn prompt with fixed generation settings.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// JSONOnly asks the provider for its JSON output mode where it has one.
	JSONOnly bool
}

// CompletionResponse carries the text payload extracted from the provider's
// response envelope. Text is empty when the envelope held no content.
type CompletionResponse struct {
	Text  string
	Model string
	Usage Usage
}

// Usage reports tokens consumed by a call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CallKind distinguishes the two prompts the engine sends.
type CallKind string

const (
	CallTriage  CallKind = "triage"
	CallClarify CallKind = "clarify"
)
