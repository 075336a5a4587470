package types

import "fmt"

// ErrorKind classifies a fetch failure for retry decisions and reporting.
type ErrorKind string

const (
	ErrorTimeout          ErrorKind = "timeout"
	ErrorHTTP             ErrorKind = "http_error"
	ErrorNetwork          ErrorKind = "network_error"
	ErrorParser           ErrorKind = "parser_error"
	ErrorInvalidURL       ErrorKind = "invalid_url"
	ErrorRobotsDisallowed ErrorKind = "robots_disallowed"
	ErrorUnknown          ErrorKind = "unknown"
)

// FetchError is the terminal failure of a single fetch attempt.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Retryable reports whether another attempt may succeed. Timeouts, network
// failures, unclassified errors, and 5xx responses count as transient; 4xx
// responses and invalid URLs do not.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case ErrorTimeout, ErrorNetwork, ErrorUnknown:
		return true
	case ErrorHTTP:
		return e.StatusCode >= 500
	default:
		return false
	}
}
