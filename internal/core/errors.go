// Package core provides the shared types and error taxonomy for the gateway.
package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorType is one of the six normalized error kinds every failure reduces to.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a client error (400)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypePermission indicates a permission error (403)
	ErrorTypePermission ErrorType = "permission_error"
	// ErrorTypeNotFound indicates a not found error (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeRateLimit indicates a rate limit error (429)
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeAPI indicates an upstream or internal failure (502/503/504)
	ErrorTypeAPI ErrorType = "api_error"
)

// Stable machine-readable codes carried alongside the type.
const (
	CodeUnknownModel       = "unknown_model"
	CodeWrongCapability    = "model_capability_mismatch"
	CodeValidationFailed   = "validation_failed"
	CodeRateLimited        = "rate_limit_exceeded"
	CodeUpstreamRefused    = "upstream_connection_refused"
	CodeUpstreamTimeout    = "upstream_timeout"
	CodeUpstreamNotFound   = "upstream_dns_failure"
	CodeUpstreamNetwork    = "upstream_network_error"
	CodeUpstreamStatus     = "upstream_error"
	CodeUpstreamBadPayload = "upstream_bad_payload"
)

// genericAPIErrorMessage replaces api_error detail outside development mode.
const genericAPIErrorMessage = "the upstream provider is currently unavailable"

// GatewayError is the single error envelope every failure is reduced to
type GatewayError struct {
	Type          ErrorType `json:"type"`
	Code          string    `json:"code,omitempty"`
	Message       string    `json:"message"`
	StatusCode    int       `json:"status_code"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	// RetryAfter, in seconds, accompanies rate_limit_error responses
	RetryAfter int `json:"retry_after,omitempty"`
	// Violations carries the full field-level rejection list for validation failures
	Violations []FieldViolation `json:"violations,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// FieldViolation names one violated constraint on one request field
type FieldViolation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status for this error
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Sanitized returns the error as sent to clients. Outside development mode
// api_error messages are replaced with a generic message; type, code and
// correlation id stay exact so operators can still cross-reference logs.
func (e *GatewayError) Sanitized(development bool) *GatewayError {
	if development || e.Type != ErrorTypeAPI {
		return e
	}
	c := *e
	c.Message = genericAPIErrorMessage
	return &c
}

// ToJSON converts the error to the uniform response envelope
func (e *GatewayError) ToJSON() map[string]interface{} {
	inner := map[string]interface{}{
		"type":    e.Type,
		"message": e.Message,
	}
	if e.Code != "" {
		inner["code"] = e.Code
	}
	if e.CorrelationID != "" {
		inner["correlation_id"] = e.CorrelationID
	}
	if len(e.Violations) > 0 {
		inner["violations"] = e.Violations
	}
	return map[string]interface{}{"error": inner}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(code, message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewValidationError creates a 400 carrying the full violation list
func NewValidationError(violations []FieldViolation) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Code:       CodeValidationFailed,
		Message:    "request validation failed",
		StatusCode: http.StatusBadRequest,
		Violations: violations,
	}
}

// NewRateLimitError creates a new rate limit error (429) with a retry hint
func NewRateLimitError(retryAfter int) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeRateLimit,
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded, retry in %d seconds", retryAfter),
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

// NewAPIError creates a new api_error with an explicit status code (502/503/504)
func NewAPIError(statusCode int, code, message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeAPI,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// FromUpstreamStatus maps an upstream-reported HTTP status into the taxonomy.
// The upstream's 4xx category passes through to the corresponding kind; any
// 5xx becomes api_error/502 regardless of the exact upstream status.
func FromUpstreamStatus(statusCode int, body []byte) *GatewayError {
	message := upstreamMessage(statusCode, body)
	switch {
	case statusCode == http.StatusUnauthorized:
		return &GatewayError{Type: ErrorTypeAuthentication, Code: CodeUpstreamStatus, Message: message, StatusCode: statusCode}
	case statusCode == http.StatusForbidden:
		return &GatewayError{Type: ErrorTypePermission, Code: CodeUpstreamStatus, Message: message, StatusCode: statusCode}
	case statusCode == http.StatusNotFound:
		return &GatewayError{Type: ErrorTypeNotFound, Code: CodeUpstreamStatus, Message: message, StatusCode: statusCode}
	case statusCode == http.StatusTooManyRequests:
		return &GatewayError{Type: ErrorTypeRateLimit, Code: CodeRateLimited, Message: message, StatusCode: statusCode, RetryAfter: 1}
	case statusCode >= 400 && statusCode < 500:
		return &GatewayError{Type: ErrorTypeInvalidRequest, Code: CodeUpstreamStatus, Message: message, StatusCode: statusCode}
	default:
		return NewAPIError(http.StatusBadGateway, CodeUpstreamStatus, message, nil)
	}
}

// upstreamMessage extracts the human message from an upstream error body,
// falling back to the raw body or the status code when it is not the
// conventional {"error": {...}} shape.
func upstreamMessage(statusCode int, body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if len(body) > 0 {
		return string(body)
	}
	return fmt.Sprintf("upstream returned status %d", statusCode)
}
