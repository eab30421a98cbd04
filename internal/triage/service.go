package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

// Notifier is told about triages that land on the emergency route.
type Notifier interface {
	Send(ctx context.Context, r *Record) error
}

// Service is the business boundary for triage operations.
type Service struct {
	cache    Cache
	engine   *Engine
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a new triage service. metrics and notifier may be nil.
func NewService(cache Cache, engine *Engine, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if cache == nil {
		panic(xerrors.New("clarification cache is required"))
	}
	if engine == nil {
		panic(xerrors.New("triage engine is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		cache:    cache,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// Triage validates intake and returns a normalized record.
func (s *Service) Triage(ctx context.Context, in PatientInput) (*Record, error) {
	if strings.TrimSpace(in.Symptoms) == "" {
		return nil, errSymptomsRequired
	}
	if in.Age != nil && *in.Age < 0 {
		return nil, fmt.Errorf("%w: age must be non-negative", ErrValidation)
	}

	raw, src, err := s.engine.Assess(ctx, &in)
	if err != nil {
		return nil, err
	}

	rec := NormalizeTriage(raw, in)
	rec.Source = src

	if s.metrics != nil {
		s.metrics.ObserveTriage(rec)
	}

	s.logger.Info(ctx, "triage complete",
		"triage_id", rec.ID,
		"severity", rec.SeverityScore,
		"route", rec.CareRoute,
		"wait", rec.WaitRange,
		"source", rec.Source,
	)

	if rec.CareRoute == RouteER && s.notifier != nil {
		// pass a copy so the caller can keep using rec
		cp := *rec
		go s.notify(context.WithoutCancel(ctx), &cp)
	}

	return rec, nil
}

// Clarify re-scores a triage from yes/no answers. Identical requests return
// the cached result, so resubmitting answers never stacks severity.
func (s *Service) Clarify(ctx context.Context, req ClarificationRequest) (*ClarificationResult, error) {
	if strings.TrimSpace(req.Symptoms) == "" {
		return nil, errSymptomsRequired
	}
	req = sanitizeClarification(req)

	key, err := Fingerprint(&req)
	if err != nil {
		return nil, fmt.Errorf("clarify fingerprint: %w", err)
	}
	L := s.logger.With("fingerprint", key)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		L.Error(ctx, err, "clarification cache lookup failed")
	}
	if ok {
		if s.metrics != nil {
			s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		}
		L.Info(ctx, "clarification served from cache", "severity", cached.SeverityScore)
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	raw, src, err := s.engine.Reassess(ctx, &req)
	if err != nil {
		return nil, err
	}

	res := NormalizeClarification(raw, &req)
	res.Source = src

	stored, err := s.cache.Add(ctx, key, res)
	if err != nil {
		L.Error(ctx, err, "failed to cache clarification")
		stored = res
	}

	if s.metrics != nil {
		s.metrics.ObserveClarification(stored)
	}

	L.Info(ctx, "clarification complete",
		"base_severity", req.BaseSeverity,
		"severity", stored.SeverityScore,
		"route", stored.CareRoute,
		"source", stored.Source,
	)

	return stored, nil
}

// sanitizeClarification bounds the question list and drops answers that
// cannot refer to a question.
func sanitizeClarification(req ClarificationRequest) ClarificationRequest {
	if len(req.ClarifyingQuestions) > MaxClarifyingQuestions {
		req.ClarifyingQuestions = req.ClarifyingQuestions[:MaxClarifyingQuestions]
	}
	if req.BaseRoute != "" && !req.BaseRoute.Valid() {
		req.BaseRoute = ""
	}
	answers := make(map[int]bool, len(req.Answers))
	for i, a := range req.Answers {
		if i >= 0 && i < MaxClarifyingQuestions {
			answers[i] = a
		}
	}
	req.Answers = answers
	return req
}

func (s *Service) notify(ctx context.Context, rec *Record) {
	L := s.logger.With("triage_id", rec.ID)
	if err := s.notifier.Send(ctx, rec); err != nil {
		L.Error(ctx, err, "failed to send triage notification")
		if s.metrics != nil {
			s.metrics.NotificationsTotal.WithLabelValues("error").Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}
}
