// internal/triage/engine.go
package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// EngineHooks receives engine events; nil funcs are skipped.
type EngineHooks struct {
	OnModelCall func(kind CallKind, outcome string, duration float64, inputTokens, outputTokens int)
	OnFallback  func(kind CallKind, reason string)
}

// Engine decides between the model and the keyword heuristic. It holds no
// per-request state.
type Engine struct {
	gateway  *Gateway
	fallback bool
	logger   log.Logger
	hooks    EngineHooks
}

// NewEngine creates an engine. A nil gateway disables the model and every
// decision comes from the heuristic. When fallback is false a failing model
// call surfaces ErrServiceUnavailable instead of falling back.
func NewEngine(gateway *Gateway, fallback bool, logger log.Logger, hooks EngineHooks) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		gateway:  gateway,
		fallback: fallback,
		logger:   logger,
		hooks:    hooks,
	}
}

// ModelEnabled reports whether a model gateway is configured.
func (e *Engine) ModelEnabled() bool {
	return e.gateway != nil
}

// Assess produces a raw first-pass triage for intake.
func (e *Engine) Assess(ctx context.Context, in *PatientInput) (RawResult, Source, error) {
	if e.gateway == nil {
		return FallbackHeuristic(in.Symptoms, in.Age), SourceHeuristic, nil
	}

	reply, err := e.callModel(ctx, CallTriage, buildTriagePrompt(in))
	if err == nil {
		return reply.Raw, SourceModel, nil
	}
	if !e.fallback {
		return RawResult{}, "", fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	e.noteFallback(ctx, CallTriage, err)
	return FallbackHeuristic(in.Symptoms, in.Age), SourceHeuristic, nil
}

// Reassess produces a raw clarification result for req.
func (e *Engine) Reassess(ctx context.Context, req *ClarificationRequest) (RawResult, Source, error) {
	if e.gateway == nil {
		return fallbackClarify(req), SourceHeuristic, nil
	}

	reply, err := e.callModel(ctx, CallClarify, buildClarifyPrompt(req))
	if err == nil {
		return reply.Raw, SourceModel, nil
	}
	if !e.fallback {
		return RawResult{}, "", fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	e.noteFallback(ctx, CallClarify, err)
	return fallbackClarify(req), SourceHeuristic, nil
}

func fallbackClarify(req *ClarificationRequest) RawResult {
	return FallbackClarify(req.BaseSeverity, req.BaseRoute, req.BaseWaitRange, req.Answers)
}

func (e *Engine) callModel(ctx context.Context, kind CallKind, p Prompt) (*Reply, error) {
	start := time.Now()
	reply, err := e.gateway.Send(ctx, kind, p)
	dur := time.Since(start).Seconds()

	if e.hooks.OnModelCall != nil {
		outcome := "ok"
		var in, out int
		if err != nil {
			outcome = failureReason(err)
		} else {
			in, out = reply.Usage.InputTokens, reply.Usage.OutputTokens
		}
		e.hooks.OnModelCall(kind, outcome, dur, in, out)
	}

	if err == nil {
		e.logger.Info(ctx, "llm response",
			"kind", kind,
			"model", reply.Model,
			"input_tokens", reply.Usage.InputTokens,
			"output_tokens", reply.Usage.OutputTokens,
			"duration", dur,
		)
	}
	return reply, err
}

func (e *Engine) noteFallback(ctx context.Context, kind CallKind, err error) {
	reason := failureReason(err)
	e.logger.Warn(ctx, "model call failed, using heuristic fallback",
		"kind", kind,
		"reason", reason,
		"error", err.Error(),
	)
	if e.hooks.OnFallback != nil {
		e.hooks.OnFallback(kind, reason)
	}
}
