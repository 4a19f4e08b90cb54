package model

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Laisky/errors/v2"
)

// ErrorCategory groups error kinds by how a caller should react to them.
type ErrorCategory int

const (
	CategoryConfiguration ErrorCategory = iota
	CategoryClient
	CategoryServer
	CategoryNetwork
	CategoryResource
	CategoryRateLimit
	CategoryContent
	CategoryAuthentication
	CategoryAuthorization
	CategoryInternal
)

// AllCategories lists every category in declaration order.
var AllCategories = []ErrorCategory{
	CategoryConfiguration,
	CategoryClient,
	CategoryServer,
	CategoryNetwork,
	CategoryResource,
	CategoryRateLimit,
	CategoryContent,
	CategoryAuthentication,
	CategoryAuthorization,
	CategoryInternal,
}

func (c ErrorCategory) String() string {
	switch c {
	case CategoryConfiguration:
		return "configuration"
	case CategoryClient:
		return "client"
	case CategoryServer:
		return "server"
	case CategoryNetwork:
		return "network"
	case CategoryResource:
		return "resource"
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryContent:
		return "content"
	case CategoryAuthentication:
		return "authentication"
	case CategoryAuthorization:
		return "authorization"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// IsRetryable reports the advisory retry default of the category.
// The retry strategy makes the final decision.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryServer, CategoryNetwork, CategoryResource, CategoryRateLimit, CategoryInternal:
		return true
	default:
		return false
	}
}

// ErrorKind is the concrete failure reported by the client.
type ErrorKind int

const (
	KindConfiguration ErrorKind = iota
	KindInvalidInput
	KindInvalidResponse
	KindServiceError
	KindRequestFailed
	KindPoolExhausted
	KindPoolClosed
	KindTimeout
	KindRateLimited
	KindModelUnavailable
	KindContentFiltered
	KindTokenLimitExceeded
	KindAuthentication
	KindAuthorization
	KindCircuitOpen
	KindRetriesExhausted
	KindInternal
)

type kindInfo struct {
	code      string
	prefix    string
	category  ErrorCategory
	status    int
	retryable bool
	terminal  bool
}

var kinds = map[ErrorKind]kindInfo{
	KindConfiguration:      {"configuration_error", "configuration error", CategoryConfiguration, http.StatusInternalServerError, false, false},
	KindInvalidInput:       {"invalid_input", "invalid input", CategoryClient, http.StatusBadRequest, false, false},
	KindInvalidResponse:    {"invalid_response", "invalid response", CategoryServer, http.StatusBadGateway, false, false},
	KindServiceError:       {"service_error", "aws service error", CategoryServer, http.StatusBadGateway, true, false},
	KindRequestFailed:      {"request_failed", "request failed", CategoryNetwork, http.StatusServiceUnavailable, true, false},
	KindPoolExhausted:      {"pool_exhausted", "connection pool exhausted", CategoryResource, http.StatusServiceUnavailable, false, false},
	KindPoolClosed:         {"pool_closed", "connection pool closed", CategoryResource, http.StatusServiceUnavailable, false, true},
	KindTimeout:            {"timeout", "request timed out", CategoryNetwork, http.StatusGatewayTimeout, true, false},
	KindRateLimited:        {"rate_limited", "rate limit exceeded", CategoryRateLimit, http.StatusTooManyRequests, true, false},
	KindModelUnavailable:   {"model_unavailable", "model not available", CategoryServer, http.StatusServiceUnavailable, true, false},
	KindContentFiltered:    {"content_filtered", "content filtered", CategoryContent, http.StatusBadRequest, false, false},
	KindTokenLimitExceeded: {"token_limit_exceeded", "token limit exceeded", CategoryResource, http.StatusBadRequest, false, true},
	KindAuthentication:     {"authentication_failed", "authentication failed", CategoryAuthentication, http.StatusUnauthorized, false, false},
	KindAuthorization:      {"authorization_failed", "authorization failed", CategoryAuthorization, http.StatusForbidden, false, false},
	KindCircuitOpen:        {"circuit_open", "circuit breaker open", CategoryServer, http.StatusServiceUnavailable, false, true},
	KindRetriesExhausted:   {"retries_exhausted", "retries exhausted", CategoryInternal, http.StatusInternalServerError, false, true},
	KindInternal:           {"internal_error", "internal error", CategoryInternal, http.StatusInternalServerError, true, false},
}

// String returns the stable machine-readable code of the kind.
func (k ErrorKind) String() string {
	if info, ok := kinds[k]; ok {
		return info.code
	}
	return "unknown_error"
}

func (k ErrorKind) Category() ErrorCategory {
	if info, ok := kinds[k]; ok {
		return info.category
	}
	return CategoryInternal
}

func (k ErrorKind) StatusCode() int {
	if info, ok := kinds[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether this specific kind is worth another attempt.
func (k ErrorKind) IsRetryable() bool {
	return kinds[k].retryable
}

// Error is the classified error returned by every client operation.
// It always keeps the original cause reachable through Unwrap.
type Error struct {
	Kind    ErrorKind
	Message string
	// Attempts is the number of physical attempts made, set on KindRetriesExhausted.
	Attempts int

	cause error
}

// NewError creates a classified error without an underlying cause.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies cause as kind. A nil cause yields a plain classified error.
func WrapError(kind ErrorKind, cause error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// Exhausted wraps the last observed error after the retry budget ran out.
func Exhausted(last *Error, attempts int) *Error {
	return &Error{
		Kind:     KindRetriesExhausted,
		Message:  fmt.Sprintf("giving up after %d attempts", attempts),
		Attempts: attempts,
		cause:    last,
	}
}

func (e *Error) Error() string {
	prefix := kinds[e.Kind].prefix
	if prefix == "" {
		prefix = "unknown error"
	}
	switch {
	case e.Message != "" && e.cause != nil:
		return fmt.Sprintf("%s: %s: %s", prefix, e.Message, e.cause.Error())
	case e.cause != nil:
		return fmt.Sprintf("%s: %s", prefix, e.cause.Error())
	case e.Message != "":
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	default:
		return prefix
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Last returns the innermost classified error for KindRetriesExhausted, or e itself.
func (e *Error) Last() *Error {
	if e.Kind != KindRetriesExhausted {
		return e
	}
	var inner *Error
	if errors.As(e.cause, &inner) {
		return inner.Last()
	}
	return e
}

// Root returns the innermost classified failure behind RetriesExhausted and CircuitOpen
// wrappers, or e itself when nothing is wrapped.
func (e *Error) Root() *Error {
	if e.Kind != KindRetriesExhausted && e.Kind != KindCircuitOpen {
		return e
	}
	var inner *Error
	if errors.As(e.cause, &inner) {
		return inner.Root()
	}
	return e
}

// Category returns the category of the error. A retries-exhausted error reports the
// category of the last observed failure.
func (e *Error) Category() ErrorCategory {
	if e.Kind == KindRetriesExhausted {
		if last := e.Last(); last != e {
			return last.Category()
		}
	}
	return e.Kind.Category()
}

// StatusCode maps the error to an HTTP status.
func (e *Error) StatusCode() int {
	if e.Kind == KindRetriesExhausted {
		if last := e.Last(); last != e {
			return last.StatusCode()
		}
	}
	return e.Kind.StatusCode()
}

// Code is the stable machine-readable identifier of the error.
func (e *Error) Code() string {
	return e.Kind.String()
}

// IsRetryable tells the caller whether another attempt could help.
// For retries-exhausted errors it reflects the last observed failure.
func (e *Error) IsRetryable() bool {
	if e.Kind == KindRetriesExhausted {
		if last := e.Last(); last != e {
			return last.IsRetryable()
		}
		return false
	}
	return e.Kind.IsRetryable()
}

// Terminal reports whether the executor must stop without consulting retry policies.
func (e *Error) Terminal() bool {
	return kinds[e.Kind].terminal
}

// Classify maps any error to a classified *Error. Errors that are already classified
// pass through untouched.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(KindTimeout, err, "")
	case errors.Is(err, context.Canceled):
		return WrapError(KindRequestFailed, err, "canceled")
	default:
		return WrapError(KindInternal, err, "")
	}
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind ErrorKind) bool {
	var classified *Error
	if !errors.As(err, &classified) {
		return false
	}
	return classified.Kind == kind
}
