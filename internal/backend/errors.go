// Package backend holds the error taxonomy and JSON transport shared by the
// scheduling, billing and catalog clients. Clients never retry; callers
// decide whether an error is worth another attempt via IsRetriable.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidRequest marks input rejected locally before any network call.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmptyResponse is a 2xx response with no body. The remote side may or
	// may not have recorded the operation.
	ErrEmptyResponse = errors.New("empty upstream response")
	// ErrUpstreamUnavailable is returned by read-only lookups when the backend
	// cannot be reached or answers with a server error.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError names the request field that failed local validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid request: %s is required", e.Field)
	}
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// Required returns a ValidationError for a missing field.
func Required(field string) error {
	return &ValidationError{Field: field}
}

// NetworkError is a transport failure: timeout, DNS, refused or reset
// connection, or a body that could not be read.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or client timeout.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// RejectedError is a non-2xx answer. Retrying without changing the request
// will not help.
type RejectedError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s rejected request: status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s rejected request: status %d: %s", e.Service, e.StatusCode, e.Body)
}

// MalformedResponseError is a 2xx body that did not decode into the expected
// shape. RawBody is kept verbatim for diagnostics.
type MalformedResponseError struct {
	Service string
	RawBody string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: malformed response", e.Service)
	}
	return fmt.Sprintf("%s: malformed response: %v", e.Service, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Kind is the coarse class of a backend error.
type Kind string

const (
	KindNone           Kind = ""
	KindInvalidRequest Kind = "invalid_request"
	KindUnavailable    Kind = "upstream_unavailable"
	KindNetwork        Kind = "network_error"
	KindRejected       Kind = "upstream_rejected"
	KindEmptyResponse  Kind = "empty_upstream_response"
	KindMalformed      Kind = "malformed_response"
	KindUnknown        Kind = "unknown"
)

// Classify maps err onto the backend taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		netErr       *NetworkError
		rejected     *RejectedError
		malformedErr *MalformedResponseError
	)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUnavailable
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &rejected):
		return KindRejected
	case errors.Is(err, ErrEmptyResponse):
		return KindEmptyResponse
	case errors.As(err, &malformedErr):
		return KindMalformed
	default:
		return KindUnknown
	}
}

// IsRetriable reports whether err is a transport failure. Only these are
// eligible for another attempt.
func IsRetriable(err error) bool {
	return Classify(err) == KindNetwork
}

// IsAmbiguous reports whether a 2xx answer left the outcome unknown.
func IsAmbiguous(err error) bool {
	k := Classify(err)
	return k == KindEmptyResponse || k == KindMalformed
}

// StatusCode extracts the upstream status from a RejectedError, or 0.
func StatusCode(err error) int {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.StatusCode
	}
	return 0
}
