package advisory

import "fmt"

// The three failure kinds below are deliberately interchangeable for callers:
// the dispatcher treats any of them as "this attempt failed" and leaves the
// query pending. They exist so logs and tests can tell transport problems
// apart from upstream ones.

// NetworkError wraps a transport-level failure (no HTTP response received).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("advisory network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError is a non-success HTTP response from the advisory backend.
type ServiceError struct {
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("advisory service error: status %d: %s", e.Status, e.Body)
}

// ProtocolError means the response body could not be parsed into the
// expected shape.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("advisory protocol error: %v", e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }
