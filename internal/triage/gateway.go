package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	tracerName = "github.com/linnemanlabs/pulseroute/internal/triage"

	DefaultGatewayTimeout = 10 * time.Second
	ResponseTokens        = 1024
	Temperature           = 0.2
)

// GatewayConfig bounds and protects calls to the model provider.
type GatewayConfig struct {
	// Timeout is the hard deadline for a single call.
	Timeout time.Duration
	// RequestsPerSecond caps outbound calls, 0 means unlimited.
	RequestsPerSecond float64
	Burst             int
	// BreakerFailures is the number of consecutive failures that opens the
	// circuit, 0 disables the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the circuit stays open before probing.
	BreakerCooldown time.Duration
}

var errNotObject = errors.New("payload is not a JSON object")

// Reply is a parsed model answer.
type Reply struct {
	Raw   RawResult
	Model string
	Usage Usage
}

// Gateway sends prompts to a Provider and parses the JSON answer. It never
// retries; the caller decides what to do on failure.
type Gateway struct {
	provider Provider
	system   string
	timeout  time.Duration
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   log.Logger
}

// NewGateway creates a gateway for provider. system names the backend in
// spans and logs (e.g. "anthropic", "gemini").
func NewGateway(provider Provider, system string, cfg GatewayConfig, logger log.Logger) *Gateway {
	if logger == nil {
		logger = log.Nop()
	}
	g := &Gateway{
		provider: provider,
		system:   system,
		timeout:  cfg.Timeout,
		logger:   logger.With("gen_ai_system", system),
	}
	if g.timeout <= 0 {
		g.timeout = DefaultGatewayTimeout
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(cfg.Burst, 1)
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.BreakerFailures > 0 {
		threshold := cfg.BreakerFailures
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "model-gateway-" + system,
			MaxRequests: 1,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// a caller walking away says nothing about the model's health
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				g.logger.Warn(context.Background(), "circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}
	return g
}

// Send performs one bounded model call and parses its JSON payload.
func (g *Gateway) Send(ctx context.Context, kind CallKind, p Prompt) (*Reply, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "llm.call"),
		attribute.String("gen_ai.system", g.system),
		attribute.String("pulseroute.call.kind", string(kind)),
	))
	defer span.End()

	reply, err := g.send(ctx, p)
	if err != nil {
		reason := failureReason(err)
		span.SetAttributes(attribute.String("pulseroute.call.outcome", reason))
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("pulseroute.call.outcome", "ok"),
		attribute.String("gen_ai.response.model", reply.Model),
		attribute.Int("gen_ai.usage.input_tokens", reply.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", reply.Usage.OutputTokens),
	)
	return reply, nil
}

func (g *Gateway) send(ctx context.Context, p Prompt) (*Reply, error) {
	if g.limiter != nil && !g.limiter.Allow() {
		return nil, ErrRateLimited
	}
	if g.breaker == nil {
		return g.call(ctx, p)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.call(ctx, p)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return out.(*Reply), nil
}

func (g *Gateway) call(ctx context.Context, p Prompt) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.provider.Complete(ctx, &CompletionRequest{
		System:      p.System,
		Prompt:      p.User,
		MaxTokens:   ResponseTokens,
		Temperature: Temperature,
		JSONOnly:    true,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrGatewayTimeout, g.timeout)
		}
		return nil, err
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, &MalformedResponseError{Reason: ReasonMissingContent}
	}

	payload := stripCodeFence(resp.Text)
	// null and scalars decode into a zero RawResult without error
	if !strings.HasPrefix(payload, "{") {
		return nil, &MalformedResponseError{Reason: ReasonInvalidJSON, Err: errNotObject}
	}
	var raw RawResult
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, &MalformedResponseError{Reason: ReasonInvalidJSON, Err: err}
	}

	return &Reply{Raw: raw, Model: resp.Model, Usage: resp.Usage}, nil
}

// stripCodeFence removes a markdown ``` fence some models wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
