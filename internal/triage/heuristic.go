package triage

import (
	"fmt"
	"strings"
)

// redFlagTerms force an emergency route. Order is significant: matched terms
// are reported in this order.
var redFlagTerms = []string{
	"chest pain",
	"shortness of breath",
	"can't breathe",
	"cannot breathe",
	"coughing up blood",
	"cough blood",
	"hemoptysis",
	"faint",
	"bleeding",
	"vision loss",
	"stroke",
	"numbness",
	"confusion",
}

var urgentTerms = []string{
	"fever",
	"vomit",
	"fracture",
	"sprain",
	"severe pain",
	"burn",
	"asthma",
	"wheezing",
}

const (
	redFlagQuestion       = "Is the chest pain crushing/pressure-like and radiating to arm, jaw, or back?"
	urgencyTrendQuestion  = "Have symptoms worsened over the past 24 hours or limited your ability to hydrate/eat?"
	deteriorationQuestion = "Are there any new or worsening breathing difficulties, confusion, or fainting spells?"

	heuristicRationale = "Based on the symptoms provided, this level of care keeps you safest. If anything worsens, seek immediate assistance."
	noConcernRationale = "No added concern from follow-ups; keeping prior severity."

	// MaxClarifyingQuestions bounds the follow-up questions on a record.
	MaxClarifyingQuestions = 3
)

// FallbackHeuristic triages symptom text with keyword rules when no model
// result is available.
func FallbackHeuristic(symptoms string, age *int) RawResult {
	lower := strings.ToLower(symptoms)
	redFlags := matchTerms(lower, redFlagTerms)
	urgent := matchTerms(lower, urgentTerms)

	severity := 2
	route := RouteTelehealth
	switch {
	case len(redFlags) > 0:
		severity = 5
		route = RouteER
	case len(urgent) > 0:
		severity = 3
		route = RouteUrgentCare
	}

	var ageFeature any = "unknown"
	if age != nil && *age > 0 {
		ageFeature = *age
	}

	return RawResult{
		SeverityScore:    severity,
		CareRoute:        string(route),
		WaitRangeMinutes: WaitRangeFor(route, severity),
		ExtractedFeatures: map[string]any{
			"age":           ageFeature,
			"notable_terms": append(redFlags, urgent...),
		},
		Rationale:           heuristicRationale,
		ClarifyingQuestions: heuristicQuestions(len(redFlags) > 0, len(urgent) > 0),
	}
}

// FallbackClarify re-scores a prior triage from yes/no answers: each yes
// raises severity by one. Route and wait keep their base values when given,
// so a heuristic clarification never silently re-routes.
func FallbackClarify(baseSeverity int, baseRoute Route, baseWaitRange string, answers map[int]bool) RawResult {
	yes := 0
	for _, a := range answers {
		if a {
			yes++
		}
	}

	base := baseSeverity
	if base == 0 {
		base = defaultSeverity
	}
	severity := clamp(base+yes, MinSeverity, MaxSeverity)

	route := baseRoute
	if route == "" {
		route = RouteFromSeverity(severity)
	}
	wait := baseWaitRange
	if wait == "" {
		wait = WaitRangeFor(route, severity)
	}

	rationale := noConcernRationale
	if yes > 0 {
		rationale = fmt.Sprintf("Answers increased concern (%d yes). Severity adjusted.", yes)
	}

	return RawResult{
		SeverityScore:    severity,
		CareRoute:        string(route),
		WaitRangeMinutes: wait,
		Rationale:        rationale,
	}
}

func matchTerms(text string, terms []string) []string {
	matched := []string{}
	for _, t := range terms {
		if strings.Contains(text, t) {
			matched = append(matched, t)
		}
	}
	return matched
}

func heuristicQuestions(redFlag, urgent bool) []string {
	qs := make([]string, 0, MaxClarifyingQuestions)
	if redFlag {
		qs = append(qs, redFlagQuestion)
	}
	if urgent {
		qs = append(qs, urgencyTrendQuestion)
	}
	qs = append(qs, deteriorationQuestion)
	if len(qs) > MaxClarifyingQuestions {
		qs = qs[:MaxClarifyingQuestions]
	}
	return qs
}
