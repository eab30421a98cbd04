package triage

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation means caller input violates a precondition.
	ErrValidation = errors.New("validation failed")

	// ErrServiceUnavailable means the model failed and no fallback is configured.
	ErrServiceUnavailable = errors.New("triage service unavailable")

	// ErrGatewayTimeout means a model call exceeded its deadline.
	ErrGatewayTimeout = errors.New("model gateway timed out")

	// ErrCircuitOpen means recent model failures tripped the circuit breaker.
	ErrCircuitOpen = errors.New("model gateway circuit open")

	// ErrRateLimited means the outbound model call budget is exhausted.
	ErrRateLimited = errors.New("model gateway rate limited")

	errSymptomsRequired = fmt.Errorf("%w: symptoms text is required", ErrValidation)
)

// GatewayError is a non-success response from the model provider.
type GatewayError struct {
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("model gateway error %d: %s", e.Status, e.Body)
}

// Malformed response reasons.
const (
	ReasonMissingContent = "missing content"
	ReasonInvalidJSON    = "invalid json"
	ReasonBadEnvelope    = "bad envelope"
)

// MalformedResponseError means the provider answered successfully but the
// content could not be used.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed model response (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed model response (%s)", e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// failureReason buckets gateway errors for logs and metric labels.
func failureReason(err error) string {
	var gwErr *GatewayError
	var mrErr *MalformedResponseError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrGatewayTimeout):
		return "timeout"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.As(err, &gwErr):
		return "status"
	case errors.As(err, &mrErr):
		return "malformed"
	default:
		return "transport"
	}
}
