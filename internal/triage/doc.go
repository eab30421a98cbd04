// Package triage provides the business boundary for PulseRoute's patient triage.
// It defines the Service (validation, clarification cache, notification), Engine
// (model-or-heuristic orchestration), Gateway (bounded calls to an LLM Provider),
// the normalizers that turn untrusted model output into canonical records, and
// the domain models.
package triage
