package platform

import "fmt"

// AuthError indicates bad credentials or a missing/expired token that could
// not be refreshed.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// RemoteError indicates a non-2xx response from the platform, optionally with
// structured field-level sub-errors (e.g. signup validation).
type RemoteError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("platform returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("platform returned %d", e.StatusCode)
}

// ConflictError indicates an action rejected because of a concurrent state
// change, e.g. a mission already accepted by another courier.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Message)
}

// TransportError wraps a network-level failure reaching the platform.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("platform unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
