// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and the mapping from ledger error kinds to HTTP status codes.

package http

import (
	"encoding/json"
	"net/http"

	"dinero/internal/core"
)

// KindRateLimited is reported when a client exceeds its request budget.
const KindRateLimited core.ErrorKind = "rate_limited"

// retryAfterSeconds is advertised on transient store failures.
const retryAfterSeconds = "1"

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Error   core.ErrorKind `json:"error"`
	Message string         `json:"message"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes no
// content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal","message":"failed to encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n"))
}

// statusForKind maps an error kind to its HTTP status.
func statusForKind(kind core.ErrorKind) int {
	switch kind {
	case core.KindInvalidAmount, core.KindInvalidCategory, core.KindInvalidDescription,
		core.KindInvalidSourceName, core.KindSameSourceTransfer:
		return http.StatusUnprocessableEntity
	case core.KindSourceNotFound, core.KindNotFound:
		return http.StatusNotFound
	case core.KindDuplicateSource:
		return http.StatusConflict
	case core.KindInvalidRequest:
		return http.StatusBadRequest
	case core.KindTransientStore:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKindResponse creates an error response for an explicit kind.
func ErrorKindResponse(kind core.ErrorKind, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusForKind(kind)).
		Body(ErrorBody{Error: kind, Message: message})
}

// ErrorResponse maps err to its kind and status. Internal errors never leak
// their text; transient failures advertise Retry-After.
func ErrorResponse(err error) *JSONResponseBuilder {
	kind := core.KindOf(err)
	message := err.Error()
	if kind == core.KindInternal {
		message = "internal error"
	}
	b := ErrorKindResponse(kind, message)
	if core.IsRetryable(err) {
		b.Header("Retry-After", retryAfterSeconds)
		b.Body(ErrorBody{Error: kind, Message: "store temporarily unavailable, retry shortly"})
	}
	return b
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorKindResponse(core.KindInvalidRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorKindResponse(core.KindNotFound, message)
}

// RateLimitedError creates a 429 response asking the client to wait a minute.
func RateLimitedError() *JSONResponseBuilder {
	return ErrorKindResponse(KindRateLimited, "rate limit exceeded, try again later").
		Header("Retry-After", "60")
}
