package model

import (
	"fmt"
	"net/http"
)

// Stable machine codes returned to the conversational client. These are part
// of the API contract; programs branch on them, humans read Message.
const (
	CodeInvalidParam      = "INVALID_PARAM"
	CodeInvalidTimeFormat = "INVALID_TIME_FORMAT"
	CodeConfirmSelfSend   = "CONFIRM_SELF_SEND_REQUIRED"
	CodeTargetRequired    = "TARGET_REQUIRED"
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeConflict          = "CONFLICT"
	CodeSnapshotNotFound  = "SNAPSHOT_NOT_FOUND"
	CodeRateLimited       = "RATE_LIMITED"
	CodeNotImplemented    = "NOT_IMPLEMENTED"
	CodeUndefinedResult   = "UNDEFINED_RESULT"
	CodeIdempotencyReplay = "IDEMPOTENCY_KEY_REUSED"
)

// Deprecated-mutation redirect codes, one per domain that disables RPC
// mutations in favor of dedicated action endpoints.
const (
	CodeContactsMutationDisabled = "CONTACTS_RPC_MUTATION_DISABLED"
	CodeTasksMutationDisabled    = "TASKS_RPC_MUTATION_DISABLED"
)

// Per-domain fallback codes for unclassified upstream failures.
const (
	CodeMailRPCError     = "MAIL_RPC_ERROR"
	CodeCalendarRPCError = "CALENDAR_RPC_ERROR"
	CodeContactsRPCError = "CONTACTS_RPC_ERROR"
	CodeTasksRPCError    = "TASKS_RPC_ERROR"
)

// APIError is the single error currency of the service. Every failure that
// reaches a client is one of these; backing services either return one
// directly or have their errors translated into one. It implements error.
type APIError struct {
	StatusCode     int            `json:"-"`
	Code           string         `json:"code"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details,omitempty"`
	RequiresReauth bool           `json:"requiresReauth,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails returns the error with the given details map attached.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	e.Details = details
	return e
}

// NewInvalidParam returns a 400 INVALID_PARAM error.
func NewInvalidParam(msg string) *APIError {
	return &APIError{StatusCode: http.StatusBadRequest, Code: CodeInvalidParam, Message: msg}
}

// NewInvalidParamf returns a 400 INVALID_PARAM error with a formatted message.
func NewInvalidParamf(format string, args ...any) *APIError {
	return NewInvalidParam(fmt.Sprintf(format, args...))
}

// NewInvalidTimeFormat returns a 400 INVALID_TIME_FORMAT error. Used when a
// calendar time object is missing either its dateTime or timeZone half.
func NewInvalidTimeFormat(field string) *APIError {
	return &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidTimeFormat,
		Message:    fmt.Sprintf("%s must include both dateTime and timeZone", field),
		Details: map[string]any{
			"expectedFormat": map[string]any{
				"dateTime": "2026-01-15T09:00:00-07:00",
				"timeZone": "America/Denver",
			},
		},
	}
}

// NewTargetRequired returns a 400 TARGET_REQUIRED error naming the missing target.
func NewTargetRequired(msg string) *APIError {
	return &APIError{StatusCode: http.StatusBadRequest, Code: CodeTargetRequired, Message: msg}
}

// NewAuthRequired returns a 401 error flagged for re-authentication.
func NewAuthRequired(msg string) *APIError {
	if msg == "" {
		msg = "Google authorization expired; please reconnect your account"
	}
	return &APIError{StatusCode: http.StatusUnauthorized, Code: CodeAuthRequired, Message: msg, RequiresReauth: true}
}

// NewConflict returns a 409 CONFLICT error with optional details
// (conflict lists, alternatives).
func NewConflict(msg string, details map[string]any) *APIError {
	return &APIError{StatusCode: http.StatusConflict, Code: CodeConflict, Message: msg, Details: details}
}

// NewSnapshotNotFound returns the 400 error for a missing or expired snapshot
// token. Callers must restart the query; there is no silent fallback.
func NewSnapshotNotFound() *APIError {
	return &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeSnapshotNotFound,
		Message:    "Snapshot token is unknown or expired; restart the query without snapshotToken",
	}
}

// NewRateLimited returns a 429 RATE_LIMITED error.
func NewRateLimited(msg string) *APIError {
	if msg == "" {
		msg = "Rate limit exceeded; try again shortly"
	}
	return &APIError{StatusCode: http.StatusTooManyRequests, Code: CodeRateLimited, Message: msg}
}

// NewNotImplemented returns a 501 for a known-missing operation. It never
// masquerades as an empty success.
func NewNotImplemented(msg string) *APIError {
	return &APIError{StatusCode: http.StatusNotImplemented, Code: CodeNotImplemented, Message: msg}
}

// NewDeprecatedOperation returns the 410 redirect for a disabled RPC mutation.
// endpoints maps logical action names to the replacement facade paths.
func NewDeprecatedOperation(code, op string, endpoints map[string]string, hint string) *APIError {
	details := map[string]any{"endpoints": endpoints}
	if hint != "" {
		details["hint"] = hint
	}
	return &APIError{
		StatusCode: http.StatusGone,
		Code:       code,
		Message:    fmt.Sprintf("Operation %q has been disabled on this endpoint; use the dedicated action endpoint instead", op),
		Details:    details,
	}
}

// NewUndefinedResult reports the contract violation where a success branch
// produced no value. Internal; surfaces as a 500.
func NewUndefinedResult(op string) *APIError {
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeUndefinedResult,
		Message:    fmt.Sprintf("Operation %q completed without producing a result", op),
	}
}

// NewInternal returns a 500 with the given domain fallback code. The message
// is deliberately generic; upstream detail never leaks to clients.
func NewInternal(code string) *APIError {
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       code,
		Message:    "An unexpected error occurred",
	}
}
