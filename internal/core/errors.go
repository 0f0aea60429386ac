// Package core provides core types and the error taxonomy for the creative service.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind represents the class of failure that occurred
type ErrorKind string

const (
	// KindValidation indicates missing or malformed input (400)
	KindValidation ErrorKind = "validation_error"
	// KindUpstreamAuth indicates an invalid upstream API key (401)
	KindUpstreamAuth ErrorKind = "upstream_auth_error"
	// KindUpstreamQuota indicates the upstream account has no credits left (402)
	KindUpstreamQuota ErrorKind = "upstream_quota_error"
	// KindUpstreamNotFound indicates the upstream could not find the resource (404)
	KindUpstreamNotFound ErrorKind = "upstream_not_found"
	// KindUpstreamConnectivity indicates DNS, dial or timeout failures (503)
	KindUpstreamConnectivity ErrorKind = "upstream_connectivity_error"
	// KindRemoteCall indicates a generic upstream failure (500)
	KindRemoteCall ErrorKind = "remote_call_error"
	// KindReadinessTimeout indicates an asset never became ACTIVE within its budget (500)
	KindReadinessTimeout ErrorKind = "readiness_timeout"
	// KindEmptyGeneration indicates the model returned no usable text (500)
	KindEmptyGeneration ErrorKind = "empty_generation_result"
	// KindRateLimit indicates the client exhausted its quota (429)
	KindRateLimit ErrorKind = "rate_limit_exceeded"
	// KindUpload indicates the asset store rejected an upload (500)
	KindUpload ErrorKind = "upload_error"
	// KindMissingIdentifier indicates an asset handle carries no usable identifier (500)
	KindMissingIdentifier ErrorKind = "missing_identifier"
	// KindAssetFailed indicates the asset store marked an asset FAILED (500)
	KindAssetFailed ErrorKind = "asset_failed"
	// KindMalformedOutput indicates the model ignored the requested output contract (500)
	KindMalformedOutput ErrorKind = "malformed_model_output"
	// KindInternal is used for anything unclassified (500)
	KindInternal ErrorKind = "internal_error"
)

// Error is the base error type returned to HTTP clients.
type Error struct {
	Kind       ErrorKind `json:"type"`
	Message    string    `json:"error"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"-"`
	Upstream   string    `json:"-"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Upstream != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Upstream, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap implements the error unwrapping interface
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstreamAuth:
		return http.StatusUnauthorized
	case KindUpstreamQuota:
		return http.StatusPaymentRequired
	case KindUpstreamNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpstreamConnectivity:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to the {error, details} envelope.
// The debug field carries the wrapped cause and is only set when debug is true.
func (e *Error) ToJSON(debug bool) map[string]any {
	body := map[string]any{
		"error":   e.Message,
		"details": e.Details,
	}
	if debug && e.Err != nil {
		body["debug"] = e.Err.Error()
	}
	return body
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// NewValidationError creates a new validation error (400)
func NewValidationError(message string, err error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: err}
}

// NewUpstreamAuthError creates a new upstream authentication error (401)
func NewUpstreamAuthError(upstream, message string) *Error {
	return &Error{Kind: KindUpstreamAuth, Message: message, Upstream: upstream}
}

// NewUpstreamQuotaError creates a new upstream quota error (402)
func NewUpstreamQuotaError(upstream, message string) *Error {
	return &Error{Kind: KindUpstreamQuota, Message: message, Upstream: upstream}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(upstream, message string) *Error {
	return &Error{Kind: KindUpstreamNotFound, Message: message, Upstream: upstream}
}

// NewConnectivityError creates a new connectivity error (503)
func NewConnectivityError(upstream, message string, err error) *Error {
	return &Error{Kind: KindUpstreamConnectivity, Message: message, Upstream: upstream, Err: err}
}

// NewRemoteCallError creates a generic upstream failure (500) carrying the upstream message.
func NewRemoteCallError(upstream, message string, err error) *Error {
	return &Error{Kind: KindRemoteCall, Message: message, Upstream: upstream, Err: err}
}

// NewRateLimitError creates a new rate limit error (429)
func NewRateLimitError(message string) *Error {
	return &Error{Kind: KindRateLimit, Message: message}
}

// NewEmptyGenerationError reports a generation that produced no usable text.
func NewEmptyGenerationError(message string) *Error {
	return &Error{Kind: KindEmptyGeneration, Message: message}
}

// NewMalformedOutputError reports model output missing the requested markers.
func NewMalformedOutputError(message string) *Error {
	return &Error{Kind: KindMalformedOutput, Message: message}
}

// NewUploadError creates a new upload error (500)
func NewUploadError(upstream, message string, err error) *Error {
	return &Error{Kind: KindUpload, Message: message, Upstream: upstream, Err: err}
}

// NewReadinessTimeoutError creates a new readiness timeout error (500)
func NewReadinessTimeoutError(message string, err error) *Error {
	return &Error{Kind: KindReadinessTimeout, Message: message, Err: err}
}

// NewMissingIdentifierError creates a new missing identifier error (500)
func NewMissingIdentifierError(message string) *Error {
	return &Error{Kind: KindMissingIdentifier, Message: message}
}

// NewAssetFailedError creates a new asset failed error (500)
func NewAssetFailedError(message string) *Error {
	return &Error{Kind: KindAssetFailed, Message: message}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// WithDetails returns a copy of e with details set.
func (e *Error) WithDetails(details string) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// ParseUpstreamError parses an error response from an upstream API and returns an appropriate Error
func ParseUpstreamError(upstream string, statusCode int, body []byte, originalErr error) *Error {
	// Gemini: {"error":{"message":...}}; ScrapeCreators: {"message":...} or {"error":"..."}
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	var flat struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &nested); err == nil && nested.Error.Message != "" {
		message = nested.Error.Message
	} else if err := json.Unmarshal(body, &flat); err == nil {
		switch {
		case flat.Message != "":
			message = flat.Message
		case flat.Error != "":
			message = flat.Error
		}
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	var e *Error
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e = NewUpstreamAuthError(upstream, message)
	case statusCode == http.StatusPaymentRequired:
		e = NewUpstreamQuotaError(upstream, message)
	case statusCode == http.StatusNotFound:
		e = NewNotFoundError(upstream, message)
	case statusCode == http.StatusServiceUnavailable || statusCode == http.StatusGatewayTimeout:
		e = NewConnectivityError(upstream, message, originalErr)
	default:
		e = NewRemoteCallError(upstream, message, originalErr)
	}
	e.Details = fmt.Sprintf("%s returned status %d", upstream, statusCode)
	return e
}

// ClassifyTransportError maps a failed round trip to a connectivity error when the cause
// is DNS, dialing or a timeout, and to a remote call error otherwise.
func ClassifyTransportError(upstream string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if isConnectivity(err) {
		return NewConnectivityError(upstream, "could not reach "+upstream, err).
			WithDetails(err.Error())
	}
	return NewRemoteCallError(upstream, upstream+" request failed", err).WithDetails(err.Error())
}

func isConnectivity(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
