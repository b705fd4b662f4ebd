package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates the per-call timeout expired before the provider
	// call (or stream) finished.
	ErrTimeout = errors.New("provider call timed out")

	// ErrClientDisconnected indicates the caller went away mid-response.
	ErrClientDisconnected = errors.New("client disconnected")
)

// UnknownModelError is returned when routing cannot resolve a provider family
// for a model and no default family is configured.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	if e.Model == "" {
		return "no provider configured for empty model"
	}
	return "no provider configured for model: " + e.Model
}

// SchemaValidationError is returned when an inbound payload is missing a
// mandatory field or cannot be decoded at all.
type SchemaValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	msg := "invalid request"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// ConversionError is returned when a mandatory field has no mapping in the
// target dialect.
type ConversionError struct {
	Field  string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s: %s", e.Field, e.Reason)
}

// UpstreamProtocolError is returned when a provider response or stream
// chunk is malformed or unparseable.
type UpstreamProtocolError struct {
	Reason string
	Err    error
}

func (e *UpstreamProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream protocol error: %s: %v", e.Reason, e.Err)
	}
	return "upstream protocol error: " + e.Reason
}

func (e *UpstreamProtocolError) Unwrap() error { return e.Err }

// UpstreamTransportError is returned when the provider call itself failed,
// either at the network layer or with a non-success status.
type UpstreamTransportError struct {
	// StatusCode is the upstream HTTP status, 0 when no response arrived.
	StatusCode int

	// Body is the upstream error body, if any.
	Body []byte

	// Message is a provider-reported error message (e.g. from a mid-stream
	// error event).
	Message string

	// Type is the provider-reported error type, such as "overloaded_error".
	Type string

	Err error
}

func (e *UpstreamTransportError) Error() string {
	switch {
	case e.Err != nil:
		return "upstream request failed: " + e.Err.Error()
	case e.Message != "":
		return "upstream error: " + e.Message
	default:
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
}

func (e *UpstreamTransportError) Unwrap() error { return e.Err }
