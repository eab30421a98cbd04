package triage

import "time"

// Route is the care setting a patient is directed to.
type Route string

const (
	// RouteER is the emergency department.
	RouteER Route = "er"

	// RouteUrgentCare is a walk-in urgent care clinic.
	RouteUrgentCare Route = "urgent_care"

	// RouteTelehealth is a remote consultation.
	RouteTelehealth Route = "telehealth"
)

// Source records which path produced a decision.
type Source string

const (
	SourceModel     Source = "model"
	SourceHeuristic Source = "heuristic"
)

// DefaultPatientName is used when intake omits a name.
const DefaultPatientName = "Patient"

// PatientInput is the intake payload. Symptoms is the only required field.
type PatientInput struct {
	Name     string `json:"name,omitempty"`
	Age      *int   `json:"age,omitempty"`
	Sex      string `json:"sex,omitempty"`
	Duration string `json:"duration,omitempty"`
	Symptoms string `json:"symptoms"`
	// Vitals is free text or a key/value mapping.
	Vitals  any    `json:"vitals,omitempty"`
	History string `json:"history,omitempty"`
}

// RawResult is the untrusted result of a model call or heuristic run.
// Every field is validated by the normalizers before use.
type RawResult struct {
	SeverityScore       any `json:"severity_score,omitempty"`
	CareRoute           any `json:"care_route,omitempty"`
	WaitRangeMinutes    any `json:"wait_range_minutes,omitempty"`
	ExtractedFeatures   any `json:"extracted_features,omitempty"`
	Rationale           any `json:"rationale,omitempty"`
	ClarifyingQuestions any `json:"clarifying_questions,omitempty"`
}

// Record is the canonical outcome of a triage run.
type Record struct {
	ID                  string         `json:"id"`
	Patient             PatientInput   `json:"patient"`
	SeverityScore       int            `json:"severityScore"`
	SeverityLabel       string         `json:"severityLabel"`
	CareRoute           Route          `json:"careRoute"`
	WaitRange           string         `json:"waitRange"`
	Explanation         string         `json:"explanation"`
	ExtractedFeatures   map[string]any `json:"extractedFeatures"`
	ClarifyingQuestions []string       `json:"clarifyingQuestions"`
	Source              Source         `json:"source"`
	CreatedAt           time.Time      `json:"createdAt"`
}

// PatientRef partitions the clarification cache per patient.
type PatientRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// key returns the identity used in cache fingerprints.
func (p PatientRef) key() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Name
}

// ClarificationRequest carries yes/no answers to a prior record's questions.
type ClarificationRequest struct {
	Symptoms            string
	ClarifyingQuestions []string
	// Answers maps question index to the patient's yes/no answer.
	Answers map[int]bool
	// BaseSeverity is the prior score, 0 when unknown.
	BaseSeverity  int
	BaseRoute     Route
	BaseWaitRange string
	Patient       PatientRef
}

// ClarificationResult is the re-scored outcome of a clarification round.
type ClarificationResult struct {
	SeverityScore int    `json:"severityScore"`
	SeverityLabel string `json:"severityLabel"`
	CareRoute     Route  `json:"careRoute"`
	WaitRange     string `json:"waitRange"`
	Explanation   string `json:"explanation"`
	Source        Source `json:"source"`
}
