package intakeapi

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/linnemanlabs/pulseroute/internal/triage"
)

// triageRequest is the intake payload. Fields that arrive in loose shapes
// are decoded as any and coerced before they reach the service.
type triageRequest struct {
	Name     string `json:"name"`
	Age      any    `json:"age"`
	Sex      string `json:"sex"`
	Duration string `json:"duration"`
	Symptoms string `json:"symptoms"`
	Vitals   any    `json:"vitals"`
	History  string `json:"history"`
}

func (t *triageRequest) symptoms() string { return t.Symptoms }

func (t *triageRequest) toInput() triage.PatientInput {
	return triage.PatientInput{
		Name:     strings.TrimSpace(t.Name),
		Age:      parseAge(t.Age),
		Sex:      t.Sex,
		Duration: t.Duration,
		Symptoms: t.Symptoms,
		Vitals:   t.Vitals,
		History:  t.History,
	}
}

type triageResponse struct {
	Triage   *triage.Record  `json:"triage"`
	Forecast triage.Forecast `json:"forecast"`
}

func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if !a.readBody(w, r, a.triageSchema, &req) {
		a.countSubmit("triage", "invalid")
		return
	}

	rec, err := a.svc.Triage(r.Context(), req.toInput())
	if err != nil {
		a.writeServiceError(r.Context(), w, err, "triage", "Unable to triage right now.")
		return
	}

	annotateSpan(r.Context(), rec.SeverityScore, rec.CareRoute, rec.Source)
	a.countSubmit("triage", "ok")

	writeJSON(w, http.StatusOK, triageResponse{
		Triage:   rec,
		Forecast: triage.BuildForecast(rec.CareRoute, a.intn),
	})
}

// parseAge accepts a JSON number or numeric string. Anything else is unknown.
func parseAge(v any) *int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return nil
	}
	age := int(math.Round(f))
	return &age
}
