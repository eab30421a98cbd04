// Package gemini implements triage.Provider on the Gemini API using the
// google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"

	"github.com/linnemanlabs/pulseroute/internal/triage"
)

const (
	// System is the gen_ai.system value for this provider.
	System = "gemini"

	DefaultEndpoint   = "https://generativelanguage.googleapis.com/"
	DefaultAPIVersion = "v1beta"
	DefaultModel      = "gemini-1.5-flash-latest"
)

// Client implements triage.Provider for Gemini.
type Client struct {
	models *genai.Models
	model  string
}

// New creates a Gemini client. Empty model or endpoint use the defaults.
// Deadlines come from the caller's context.
func New(ctx context.Context, apiKey, model, endpoint string) (*Client, error) {
	if model == "" {
		model = DefaultModel
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    endpoint,
			APIVersion: DefaultAPIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Client{models: client.Models, model: model}, nil
}

// Complete sends one single-turn prompt and returns the first candidate's text.
func (c *Client) Complete(ctx context.Context, req *triage.CompletionRequest) (*triage.CompletionResponse, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), generateConfig(req))
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &triage.GatewayError{Status: apiErr.Code, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	return fromResponse(resp, c.model), nil
}

func generateConfig(req *triage.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens), //nolint:gosec // G115: bounded by triage.ResponseTokens
	}
	if req.JSONOnly {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}

func fromResponse(r *genai.GenerateContentResponse, model string) *triage.CompletionResponse {
	out := &triage.CompletionResponse{
		Model: model,
		Text:  r.Text(),
	}
	if r.ModelVersion != "" {
		out.Model = r.ModelVersion
	}
	if u := r.UsageMetadata; u != nil {
		out.Usage = triage.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	return out
}
