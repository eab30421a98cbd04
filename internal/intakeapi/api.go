// Package intakeapi exposes the triage service over HTTP.
package intakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kaptinlin/jsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/pulseroute/internal/triage"
)

const maxBodyBytes = 1 << 20

// TriageService defines the business operations intakeapi needs.
type TriageService interface {
	Triage(ctx context.Context, in triage.PatientInput) (*triage.Record, error)
	Clarify(ctx context.Context, req triage.ClarificationRequest) (*triage.ClarificationResult, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger        log.Logger
	svc           TriageService
	metrics       *triage.Metrics
	triageSchema  *jsonschema.Schema
	clarifySchema *jsonschema.Schema
	// intn feeds the load forecast, nil uses math/rand/v2.
	intn func(n int) int
}

// New creates a new API handler. metrics may be nil.
func New(logger log.Logger, svc TriageService, metrics *triage.Metrics) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger:        logger,
		svc:           svc,
		metrics:       metrics,
		triageSchema:  mustCompile(triageSchemaJSON),
		clarifySchema: mustCompile(clarifySchemaJSON),
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/triage", a.handleTriage)
		r.Post("/clarify", a.handleClarify)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// readBody reads a bounded request body and checks it against schema.
// On failure it writes the 400 response and returns false.
func (a *API) readBody(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid payload"})
		return false
	}

	result := schema.ValidateJSON(raw)
	if result.IsValid() {
		if err := json.Unmarshal(raw, dst); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid payload"})
			return false
		}
		return true
	}

	a.logger.Info(r.Context(), "rejected payload", "path", r.URL.Path, "errors", len(result.Errors))

	// type mismatches still fill the fields that decode
	_ = json.Unmarshal(raw, dst)
	msg := "invalid payload"
	if s, ok := dst.(interface{ symptoms() string }); ok && strings.TrimSpace(s.symptoms()) == "" {
		msg = symptomsRequired
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
	return false
}

// writeServiceError maps service errors to HTTP statuses.
func (a *API) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, endpoint, unavailable string) {
	switch {
	case errors.Is(err, triage.ErrValidation):
		a.countSubmit(endpoint, "invalid")
		msg := strings.TrimPrefix(err.Error(), triage.ErrValidation.Error()+": ")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
	case errors.Is(err, triage.ErrServiceUnavailable):
		a.countSubmit(endpoint, "unavailable")
		a.logger.Error(ctx, err, "triage service unavailable", "endpoint", endpoint)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: unavailable})
	default:
		a.countSubmit(endpoint, "error")
		a.logger.Error(ctx, err, "request failed", "endpoint", endpoint)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: unavailable})
	}
}

func (a *API) countSubmit(endpoint, result string) {
	if a.metrics != nil {
		a.metrics.SubmitsTotal.WithLabelValues(endpoint, result).Inc()
	}
}

func annotateSpan(ctx context.Context, severity int, route triage.Route, source triage.Source) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("pulseroute.triage.severity", severity),
		attribute.String("pulseroute.triage.route", string(route)),
		attribute.String("pulseroute.triage.source", string(source)),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}
