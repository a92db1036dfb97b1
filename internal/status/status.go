// Package status implements the error envelope used throughout rocky in
// place of exceptions: operations return a Status rather than panicking.
package status

import "fmt"

// Kind classifies why an operation did not complete normally.
type Kind int

const (
	// OK means the operation succeeded.
	OK Kind = iota
	// ResourceUnavailable means a layer is not open or a remote resource
	// could not be reached.
	ResourceUnavailable
	// ConfigurationError means setup-time values (e.g. a profile mismatch)
	// are invalid.
	ConfigurationError
	// AssertionFailure means an internal invariant was violated; this is
	// the only Kind that should be treated as a programming error.
	AssertionFailure
	// ServiceUnavailable means a layer cannot currently satisfy the
	// requested operation (e.g. closing while opening).
	ServiceUnavailable
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case ResourceUnavailable:
		return "ResourceUnavailable"
	case ConfigurationError:
		return "ConfigurationError"
	case AssertionFailure:
		return "AssertionFailure"
	case ServiceUnavailable:
		return "ServiceUnavailable"
	default:
		return "Unknown"
	}
}

// Status is the result envelope returned by fallible operations that are
// not simple I/O (those use iocontrol.IOResult instead).
type Status struct {
	Kind    Kind
	Message string
}

// OKStatus reports success.
func OKStatus() Status { return Status{Kind: OK} }

// Error constructs a non-OK status.
func Error(kind Kind, format string, args ...any) Status {
	return Status{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Ok reports whether the status represents success.
func (s Status) Ok() bool { return s.Kind == OK }

func (s Status) String() string {
	if s.Ok() {
		return "OK"
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

func (s Status) Error() string { return s.String() }
