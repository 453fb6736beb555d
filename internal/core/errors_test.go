package core

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromUpstreamStatusTotality(t *testing.T) {
	tests := []struct {
		name       string
		upstream   int
		wantType   ErrorType
		wantStatus int
	}{
		{"bad request", http.StatusBadRequest, ErrorTypeInvalidRequest, http.StatusBadRequest},
		{"unauthorized", http.StatusUnauthorized, ErrorTypeAuthentication, http.StatusUnauthorized},
		{"forbidden", http.StatusForbidden, ErrorTypePermission, http.StatusForbidden},
		{"not found", http.StatusNotFound, ErrorTypeNotFound, http.StatusNotFound},
		{"rate limited", http.StatusTooManyRequests, ErrorTypeRateLimit, http.StatusTooManyRequests},
		{"payload too large", http.StatusRequestEntityTooLarge, ErrorTypeInvalidRequest, http.StatusRequestEntityTooLarge},
		{"internal error", http.StatusInternalServerError, ErrorTypeAPI, http.StatusBadGateway},
		{"bad gateway", http.StatusBadGateway, ErrorTypeAPI, http.StatusBadGateway},
		{"service unavailable", http.StatusServiceUnavailable, ErrorTypeAPI, http.StatusBadGateway},
		{"gateway timeout", http.StatusGatewayTimeout, ErrorTypeAPI, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gwErr := FromUpstreamStatus(tt.upstream, nil)
			require.NotNil(t, gwErr)
			assert.Equal(t, tt.wantType, gwErr.Type)
			assert.Equal(t, tt.wantStatus, gwErr.HTTPStatusCode())
		})
	}
}

func TestFromUpstreamStatusExtractsMessage(t *testing.T) {
	body := []byte(`{"error": {"message": "model is overloaded", "type": "server_error"}}`)
	gwErr := FromUpstreamStatus(http.StatusServiceUnavailable, body)
	assert.Equal(t, "model is overloaded", gwErr.Message)

	gwErr = FromUpstreamStatus(http.StatusBadGateway, []byte("not json"))
	assert.Equal(t, "not json", gwErr.Message)

	gwErr = FromUpstreamStatus(http.StatusBadGateway, nil)
	assert.Contains(t, gwErr.Message, "502")
}

func TestFromUpstreamStatusRateLimitCarriesRetryHint(t *testing.T) {
	gwErr := FromUpstreamStatus(http.StatusTooManyRequests, nil)
	assert.Greater(t, gwErr.RetryAfter, 0)
}

func TestSanitized(t *testing.T) {
	apiErr := NewAPIError(http.StatusBadGateway, CodeUpstreamNetwork, "dial tcp 10.0.0.5:443: connection reset", nil)
	apiErr.CorrelationID = "corr-1"

	t.Run("production hides api_error detail", func(t *testing.T) {
		out := apiErr.Sanitized(false)
		assert.NotContains(t, out.Message, "10.0.0.5")
		assert.Equal(t, ErrorTypeAPI, out.Type)
		assert.Equal(t, CodeUpstreamNetwork, out.Code)
		assert.Equal(t, "corr-1", out.CorrelationID)
		// The original is untouched
		assert.Contains(t, apiErr.Message, "10.0.0.5")
	})

	t.Run("development keeps detail", func(t *testing.T) {
		out := apiErr.Sanitized(true)
		assert.Contains(t, out.Message, "10.0.0.5")
	})

	t.Run("client errors are never rewritten", func(t *testing.T) {
		valErr := NewInvalidRequestError("", "temperature out of range", nil)
		out := valErr.Sanitized(false)
		assert.Equal(t, "temperature out of range", out.Message)
	})
}

func TestToJSONEnvelope(t *testing.T) {
	gwErr := NewValidationError([]FieldViolation{
		{Field: "model", Code: CodeUnknownModel, Message: "unknown model"},
	})
	gwErr.CorrelationID = "corr-2"

	out := gwErr.ToJSON()
	inner, ok := out["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, ErrorTypeInvalidRequest, inner["type"])
	assert.Equal(t, CodeValidationFailed, inner["code"])
	assert.Equal(t, "corr-2", inner["correlation_id"])
	assert.Len(t, inner["violations"], 1)
}

func TestHTTPStatusCodeDefaults(t *testing.T) {
	for errType, want := range map[ErrorType]int{
		ErrorTypeInvalidRequest: http.StatusBadRequest,
		ErrorTypeAuthentication: http.StatusUnauthorized,
		ErrorTypePermission:     http.StatusForbidden,
		ErrorTypeNotFound:       http.StatusNotFound,
		ErrorTypeRateLimit:      http.StatusTooManyRequests,
		ErrorTypeAPI:            http.StatusBadGateway,
	} {
		gwErr := &GatewayError{Type: errType}
		assert.Equal(t, want, gwErr.HTTPStatusCode(), "type %s", errType)
	}
}
