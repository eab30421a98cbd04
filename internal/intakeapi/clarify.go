package intakeapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/linnemanlabs/pulseroute/internal/triage"
)

type patientRef struct {
	ID   any    `json:"id"`
	Name string `json:"name"`
}

type clarifyRequest struct {
	Symptoms            string         `json:"symptoms"`
	ClarifyingQuestions []any          `json:"clarifyingQuestions"`
	Answers             map[string]any `json:"answers"`
	BaseSeverity        any            `json:"baseSeverity"`
	BaseRoute           string         `json:"baseRoute"`
	BaseWaitRange       string         `json:"baseWaitRange"`
	Patient             patientRef     `json:"patient"`
}

func (c *clarifyRequest) symptoms() string { return c.Symptoms }

func (c *clarifyRequest) toRequest() triage.ClarificationRequest {
	req := triage.ClarificationRequest{
		Symptoms:      c.Symptoms,
		Answers:       make(map[int]bool, len(c.Answers)),
		BaseRoute:     triage.Route(c.BaseRoute),
		BaseWaitRange: strings.TrimSpace(c.BaseWaitRange),
		Patient: triage.PatientRef{
			ID:   idString(c.Patient.ID),
			Name: c.Patient.Name,
		},
	}

	// 0 means unknown; anything else is pulled into range
	if base := triage.ParseSeverity(c.BaseSeverity, 0); base != 0 {
		req.BaseSeverity = min(max(base, triage.MinSeverity), triage.MaxSeverity)
	}

	// keep positions so answer indexes still line up
	for _, q := range c.ClarifyingQuestions {
		req.ClarifyingQuestions = append(req.ClarifyingQuestions, questionText(q))
	}

	for k, v := range c.Answers {
		i, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			continue
		}
		req.Answers[i] = truthy(v)
	}
	return req
}

type clarifyResponse struct {
	Triage *triage.ClarificationResult `json:"triage"`
}

func (a *API) handleClarify(w http.ResponseWriter, r *http.Request) {
	var req clarifyRequest
	if !a.readBody(w, r, a.clarifySchema, &req) {
		a.countSubmit("clarify", "invalid")
		return
	}

	res, err := a.svc.Clarify(r.Context(), req.toRequest())
	if err != nil {
		a.writeServiceError(r.Context(), w, err, "clarify", "Unable to process clarifying answers.")
		return
	}

	annotateSpan(r.Context(), res.SeverityScore, res.CareRoute, res.Source)
	a.countSubmit("clarify", "ok")

	writeJSON(w, http.StatusOK, clarifyResponse{Triage: res})
}

// truthy coerces a loosely typed yes/no answer.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "no", "n", "false", "off":
			return false
		}
		return true
	default:
		return false
	}
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// questionText keeps every entry so answer indexes stay aligned; null
// becomes an empty question.
func questionText(q any) string {
	switch v := q.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
