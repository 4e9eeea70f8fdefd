// Package conduit holds the domain types shared across provider adapters,
// the client factory, and the router: the canonical error taxonomy and the
// configuration/pricing records that describe a provider deployment. Nothing
// in this package imports an adapter, registry, or router package — it sits
// below all of them so the dependency graph never cycles back through an
// admin layer.
package conduit

import (
	"fmt"
	"net/http"
)

// ErrorKind is the closed set of reasons a provider operation can fail.
// Every adapter maps its provider-native error into one of these before it
// reaches the router or the HTTP layer, so retry/fallback decisions never
// need to know a specific provider's error shape.
type ErrorKind int

const (
	// KindUnknown is never produced deliberately; its presence in a log line
	// means an adapter returned a raw error without classifying it.
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindAuthentication
	KindInvalidModel
	KindUnsupportedOperation
	KindContextLengthExceeded
	KindRateLimited
	KindTimeout
	KindCommunication
	KindProviderInternal
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindInvalidModel:
		return "invalid_model"
	case KindUnsupportedOperation:
		return "unsupported_operation"
	case KindContextLengthExceeded:
		return "context_length_exceeded"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindCommunication:
		return "communication"
	case KindProviderInternal:
		return "provider_internal"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// HTTPStatus maps an ErrorKind to the status code the gateway returns to its
// own callers — distinct from whatever status the upstream provider sent.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindConfiguration:
		return http.StatusInternalServerError
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindInvalidModel:
		return http.StatusBadRequest
	case KindUnsupportedOperation:
		return http.StatusNotImplemented
	case KindContextLengthExceeded:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCommunication:
		return http.StatusBadGateway
	case KindProviderInternal:
		return http.StatusBadGateway
	case KindCancelled:
		return 499 // client closed request, nginx convention
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the failover layer should try the next
// candidate in the chain rather than surface the error immediately.
// Authentication, configuration, and invalid-model errors are caller
// mistakes that won't be fixed by trying a different provider deployment
// of the same model, except that a *different* provider entirely might
// still succeed, which the router — not this method — decides.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindCommunication, KindProviderInternal:
		return true
	default:
		return false
	}
}

// Error is the normalized error every adapter returns instead of a raw SDK
// or HTTP error. Provider is the adapter name ("openai", "bedrock", ...).
type Error struct {
	Kind       ErrorKind
	Provider   string
	Message    string
	StatusCode int // upstream HTTP status, 0 if not applicable
	Err        error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus implements providers.StatusCoder so the existing apierr
// plumbing keeps working unchanged for adapters that return *Error.
func (e *Error) HTTPStatus() int {
	if e.StatusCode != 0 && e.Kind == KindProviderInternal {
		return e.StatusCode
	}
	return e.Kind.HTTPStatus()
}

// NewError builds a classified adapter error.
func NewError(kind ErrorKind, provider, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: cause}
}

// ClassifyHTTPStatus maps a raw upstream HTTP status code to an ErrorKind,
// the fallback path for adapters whose SDK surfaces only a status code.
func ClassifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return KindInvalidModel
	case status == http.StatusNotImplemented:
		return KindUnsupportedOperation
	case status >= 500:
		return KindProviderInternal
	case status >= 400:
		return KindCommunication
	default:
		return KindUnknown
	}
}
