package triage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Prompt is a system/user prompt pair for one model call.
type Prompt struct {
	System string
	User   string
}

// buildTriagePrompt asks the model for a first-pass triage of intake text.
func buildTriagePrompt(in *PatientInput) Prompt {
	system := strings.Join([]string{
		"You are a hospital triage assistant.",
		"Given messy symptom text and basics, emit JSON only.",
		"Field rules:",
		"- severity_score: integer 1-5 (5 is critical).",
		"- care_route: one of er|urgent_care|telehealth.",
		`- wait_range_minutes: string like "10-30".`,
		"- extracted_features: key clinical signals from the text.",
		"- rationale: 2-3 short sentences, warm and concise, no extra advice. Plain language clear to patients and staff.",
		"- clarifying_questions: array of 1-3 short questions that would meaningfully tighten the severity score for this presentation.",
		"- Clarifying questions must be specific to the symptom story and ask for missing details (onset, location, severity, red-flag attributes). Avoid generic questions.",
		"Keep JSON lean; do not add extra keys.",
	}, "\n")

	age := "unknown"
	if in.Age != nil && *in.Age > 0 {
		age = fmt.Sprintf("%d", *in.Age)
	}
	history := in.History
	if strings.TrimSpace(history) == "" {
		history = "none shared"
	}
	vitals, err := json.Marshal(in.Vitals)
	if err != nil || in.Vitals == nil {
		vitals = []byte("{}")
	}

	user := fmt.Sprintf(`Patient input:
- Age: %s
- Vitals: %s
- History: %s
- Symptoms: %s

Return JSON with: severity_score, care_route, wait_range_minutes, extracted_features, rationale, clarifying_questions.`,
		age,
		string(vitals),
		history,
		in.Symptoms,
	)

	return Prompt{System: system, User: user}
}

// buildClarifyPrompt asks the model to re-score after yes/no follow-ups.
func buildClarifyPrompt(req *ClarificationRequest) Prompt {
	system := strings.Join([]string{
		"You are a hospital triage assistant tightening a severity score after follow-up questions.",
		"You will be given the original symptom story and 1-3 clarifying questions with yes/no answers.",
		"Update the severity_score (1-5), care_route (er|urgent_care|telehealth), wait_range_minutes, and provide a short rationale.",
		"Use plain language that is easy for both patients and clinical staff to read.",
		"Keep JSON lean: severity_score, care_route, wait_range_minutes, rationale.",
		"If answers increase concern, bump severity and explain why.",
		"Never introduce new questions.",
		"Return JSON only.",
	}, "\n")

	var b strings.Builder
	fmt.Fprintf(&b, "Symptoms: %s\n", req.Symptoms)
	fmt.Fprintf(&b, "Original severity: %s\n", orUnknown(req.BaseSeverity))
	fmt.Fprintf(&b, "Original route: %s\n", orUnknown(string(req.BaseRoute)))
	fmt.Fprintf(&b, "Original wait: %s\n", orUnknown(req.BaseWaitRange))
	b.WriteString("Clarifying Q&A:\n")
	for i, q := range req.ClarifyingQuestions {
		answer := "no"
		if req.Answers[i] {
			answer = "yes"
		}
		fmt.Fprintf(&b, "- Q%d: %s | Answer: %s\n", i+1, q, answer)
	}

	return Prompt{System: system, User: b.String()}
}

func orUnknown[T comparable](v T) string {
	var zero T
	if v == zero {
		return "unknown"
	}
	return fmt.Sprint(v)
}
