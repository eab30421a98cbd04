package triage

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	defaultTriageExplanation  = "Recommendation generated from reported symptoms."
	defaultClarifyExplanation = "Clarifying answers processed to update severity."
)

// NormalizeTriage turns a raw result into a canonical record. It is the only
// place raw model output is trusted, and it always yields a valid record no
// matter how malformed raw is.
func NormalizeTriage(raw RawResult, in PatientInput) *Record {
	severity := clamp(ParseSeverity(raw.SeverityScore, defaultSeverity), MinSeverity, MaxSeverity)
	route := MergeCareRoute(raw.CareRoute, severity)

	wait := nonEmptyString(raw.WaitRangeMinutes)
	if wait == "" {
		wait = WaitRangeFor(route, severity)
	}

	explanation := nonEmptyString(raw.Rationale)
	if explanation == "" {
		explanation = defaultTriageExplanation
	}

	features, ok := raw.ExtractedFeatures.(map[string]any)
	if !ok || features == nil {
		features = map[string]any{}
	}

	if strings.TrimSpace(in.Name) == "" {
		in.Name = DefaultPatientName
	}

	return &Record{
		ID:                  ulid.Make().String(),
		Patient:             in,
		SeverityScore:       severity,
		SeverityLabel:       SeverityLabel(severity),
		CareRoute:           route,
		WaitRange:           wait,
		Explanation:         explanation,
		ExtractedFeatures:   features,
		ClarifyingQuestions: questionList(raw.ClarifyingQuestions),
		CreatedAt:           time.Now().UTC(),
	}
}

// NormalizeClarification merges a raw clarification result over the request's
// base values. Each field takes the raw value when present and valid, then the
// base value, then a fresh derivation, so a clarification adjusts context
// rather than resetting it.
func NormalizeClarification(raw RawResult, req *ClarificationRequest) *ClarificationResult {
	base := req.BaseSeverity
	if base < MinSeverity || base > MaxSeverity {
		base = defaultSeverity
	}
	severity := clamp(ParseSeverity(raw.SeverityScore, base), MinSeverity, MaxSeverity)

	var suggested any = raw.CareRoute
	if _, ok := asRoute(suggested); !ok {
		suggested = req.BaseRoute
	}
	route := MergeCareRoute(suggested, severity)

	wait := nonEmptyString(raw.WaitRangeMinutes)
	if wait == "" {
		wait = strings.TrimSpace(req.BaseWaitRange)
	}
	if wait == "" {
		wait = WaitRangeFor(route, severity)
	}

	explanation := nonEmptyString(raw.Rationale)
	if explanation == "" {
		explanation = defaultClarifyExplanation
	}

	return &ClarificationResult{
		SeverityScore: severity,
		SeverityLabel: SeverityLabel(severity),
		CareRoute:     route,
		WaitRange:     wait,
		Explanation:   explanation,
	}
}

func nonEmptyString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// questionList keeps non-empty string entries, capped at MaxClarifyingQuestions.
func questionList(v any) []string {
	out := []string{}
	switch qs := v.(type) {
	case []string:
		for _, q := range qs {
			out = appendQuestion(out, q)
		}
	case []any:
		for _, q := range qs {
			s, ok := q.(string)
			if !ok {
				continue
			}
			out = appendQuestion(out, s)
		}
	}
	return out
}

func appendQuestion(qs []string, q string) []string {
	if len(qs) >= MaxClarifyingQuestions {
		return qs
	}
	if q = strings.TrimSpace(q); q != "" {
		qs = append(qs, q)
	}
	return qs
}
