package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced in {"error", "code"} payloads.
const (
	CodeUnauthenticated       = "unauthenticated"
	CodeNoActiveConfiguration = "no_active_configuration"
	CodeUnsupportedProvider   = "unsupported_provider"
	CodeSessionPaused         = "session_paused"
	CodeSessionNotFound       = "session_not_found"
	CodeInvalidRequest        = "invalid_request"
	CodePolicyDenied          = "policy_denied"
	CodeProviderError         = "provider_error"
	CodePersistenceError      = "persistence_error"
	CodeInternal              = "internal_error"
)

// UnauthenticatedError means no valid caller identity was supplied.
type UnauthenticatedError struct{}

func (e *UnauthenticatedError) Error() string { return "unauthorized" }

// NoActiveConfigurationError means the caller has no active configuration.
type NoActiveConfigurationError struct {
	OwnerID string
}

func (e *NoActiveConfigurationError) Error() string {
	return "No active AI configuration found"
}

// UnsupportedProviderError means the provider or model is not in the registry.
type UnsupportedProviderError struct {
	Provider string
	Model    string
}

func (e *UnsupportedProviderError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("unsupported model %q for provider %q", e.Model, e.Provider)
	}
	return fmt.Sprintf("Unsupported provider: %s", e.Provider)
}

// SessionPausedError means relays are refused while the session is paused.
type SessionPausedError struct {
	SessionID string
}

func (e *SessionPausedError) Error() string {
	return fmt.Sprintf("session %s is paused", e.SessionID)
}

// SessionNotFoundError means the session does not exist or belongs to someone else.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}

// InvalidRequestError reports a malformed request.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string { return e.Reason }

// PolicyDeniedError means the admission policy refused the relay.
type PolicyDeniedError struct {
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	if e.Reason == "" {
		return "relay denied by policy"
	}
	return "relay denied by policy: " + e.Reason
}

// ProviderError is any vendor HTTP, transport or response-shape failure.
type ProviderError struct {
	Vendor     string
	Message    string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return fmt.Sprintf("%s API error: %s", e.Vendor, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError is a failed write to the persistence gateway.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RelayError adds the session and slot that triggered a provider failure.
// It unwraps to the original *ProviderError.
type RelayError struct {
	SessionID string
	ModelType ModelType
	Model     string
	Err       error
}

func (e *RelayError) Error() string {
	return e.Err.Error()
}

func (e *RelayError) Unwrap() error { return e.Err }

// ErrorCode returns the stable code for err.
func ErrorCode(err error) string {
	var (
		unauth   *UnauthenticatedError
		noCfg    *NoActiveConfigurationError
		unsup    *UnsupportedProviderError
		paused   *SessionPausedError
		notFound *SessionNotFoundError
		invalid  *InvalidRequestError
		denied   *PolicyDeniedError
		provider *ProviderError
		persist  *PersistenceError
	)
	switch {
	case errors.As(err, &unauth):
		return CodeUnauthenticated
	case errors.As(err, &noCfg):
		return CodeNoActiveConfiguration
	case errors.As(err, &unsup):
		return CodeUnsupportedProvider
	case errors.As(err, &paused):
		return CodeSessionPaused
	case errors.As(err, &notFound):
		return CodeSessionNotFound
	case errors.As(err, &invalid):
		return CodeInvalidRequest
	case errors.As(err, &denied):
		return CodePolicyDenied
	case errors.As(err, &provider):
		return CodeProviderError
	case errors.As(err, &persist):
		return CodePersistenceError
	}
	return CodeInternal
}
