// Package apperrors is the shared classified-error vocabulary used across
// admission, the turn loop scheduler, the agent invoker, and the tool
// dispatcher. It follows the same wrapping pattern as a typical
// ValidationError/LoadError pair, generalized to the full error taxonomy
// an experiment can fail with.
package apperrors

import (
	"fmt"
	"time"
)

// Kind is one of the classified error kinds an experiment can finalize with.
type Kind string

// Error kind constants. These values are persisted verbatim into
// Experiment.LastError.Kind, so they must never be renamed without a
// migration.
const (
	KindConfigMissing      Kind = "CONFIG_MISSING"
	KindToolDispatchFailed Kind = "TOOL_DISPATCH_FAILED"
	KindToolInvalidInput   Kind = "TOOL_INVALID_INPUT"
	KindTransportTimeout   Kind = "TRANSPORT_TIMEOUT"
	KindTransportError     Kind = "TRANSPORT_ERROR"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindSchemaError        Kind = "SCHEMA_ERROR"
	KindAgentStalled       Kind = "AGENT_STALLED"
	KindBudgetMoves        Kind = "BUDGET_MOVES"
	KindBudgetTime         Kind = "BUDGET_TIME"
	KindInternal           Kind = "INTERNAL"
)

// ClassifiedError is the structured {error_kind, cause, timestamp} value
// persisted on an Experiment's last_error column at finalize time.
type ClassifiedError struct {
	Kind      Kind
	Cause     string
	Timestamp time.Time
	wrapped   error
}

// New builds a ClassifiedError, capturing the current time.
func New(kind Kind, cause error) *ClassifiedError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ClassifiedError{Kind: kind, Cause: msg, Timestamp: time.Now(), wrapped: cause}
}

// Newf builds a ClassifiedError from a formatted message with no
// underlying error to unwrap.
func Newf(kind Kind, format string, args ...any) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Cause: fmt.Sprintf(format, args...), Timestamp: time.Now()}
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *ClassifiedError) Unwrap() error {
	return e.wrapped
}

// Retryable reports whether the ingress queue's at-least-once redelivery
// is expected to eventually succeed for this kind. The core itself never
// retries — this is informational only, surfaced for operator dashboards
// outside the core.
func (e *ClassifiedError) Retryable() bool {
	switch e.Kind {
	case KindConfigMissing, KindToolInvalidInput, KindSchemaError, KindInternal:
		return false
	default:
		return true
	}
}
