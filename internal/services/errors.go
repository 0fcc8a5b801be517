package services

import (
	"errors"
	"fmt"
)

// DefaultRejectedMessage is used when a 4xx response carries no message.
const DefaultRejectedMessage = "request rejected by the optimization service"

// UnauthenticatedError is returned before any network call when no usable
// credential is available.
type UnauthenticatedError struct {
	Reason string
}

func (e *UnauthenticatedError) Error() string {
	if e.Reason == "" {
		return "not authenticated"
	}
	return "not authenticated: " + e.Reason
}

// AuthenticationError means the service rejected the credential (401/403).
// The held credential must be discarded.
type AuthenticationError struct {
	StatusCode    int
	ServerMessage string
}

func (e *AuthenticationError) Error() string {
	if e.ServerMessage == "" {
		return fmt.Sprintf("authentication rejected (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("authentication rejected (status %d): %s", e.StatusCode, e.ServerMessage)
}

// RequestRejectedError carries a non-auth 4xx rejection.
type RequestRejectedError struct {
	StatusCode    int
	ServerMessage string
}

func (e *RequestRejectedError) Error() string {
	return e.ServerMessage
}

// ServiceUnavailableError covers 5xx responses, network failures and timeouts.
type ServiceUnavailableError struct {
	StatusCode int
	Err        error
}

func (e *ServiceUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("optimization service unavailable (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("optimization service unavailable: %v", e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Err
}

// MalformedResponseError means a 2xx body did not match the result contract.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return "malformed response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// ErrorKind is a short stable name for a failure, used in logs, metrics and
// persisted history.
func ErrorKind(err error) string {
	var (
		unauth    *UnauthenticatedError
		auth      *AuthenticationError
		rejected  *RequestRejectedError
		down      *ServiceUnavailableError
		malformed *MalformedResponseError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unauth):
		return "unauthenticated"
	case errors.As(err, &auth):
		return "authentication"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.As(err, &down):
		return "unavailable"
	case errors.As(err, &malformed):
		return "malformed"
	default:
		return "unknown"
	}
}

// IsAuthFailure reports whether err requires re-authentication.
func IsAuthFailure(err error) bool {
	var (
		unauth *UnauthenticatedError
		auth   *AuthenticationError
	)
	return errors.As(err, &unauth) || errors.As(err, &auth)
}
