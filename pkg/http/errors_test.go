package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkghttp "github.com/BradenHooton/propertyhub/pkg/http"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, 400, "test_error", "Test message")

	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, "test_error", resp.Error)
	assert.Equal(t, "Test message", resp.Message)
	assert.Empty(t, resp.Details)
}

func TestWriteErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteErrorWithDetails(w, 400, "test_error", "Test message", "Additional details")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Additional details", resp.Details)
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, string)
		status int
		code   string
	}{
		{"validation", pkghttp.WriteValidationError, 400, "validation_error"},
		{"unauthenticated", pkghttp.WriteUnauthenticated, 401, "unauthenticated"},
		{"unauthorized", pkghttp.WriteUnauthorized, 403, "unauthorized"},
		{"email not verified", pkghttp.WriteEmailNotVerified, 403, "email_not_verified"},
		{"not found", pkghttp.WriteNotFound, 404, "not_found"},
		{"conflict", pkghttp.WriteConflict, 409, "conflict"},
		{"rate limited", pkghttp.WriteTooManyRequests, 429, "rate_limit_exceeded"},
		{"server error", pkghttp.WriteServerError, 500, "server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "something happened")

			assert.Equal(t, tt.status, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
			assert.Equal(t, "something happened", body["message"])
			assert.NotContains(t, body, "details")
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]int{"id": 7})

	assert.Equal(t, 201, w.Code)
	assert.JSONEq(t, `{"id":7}`, w.Body.String())
}

func TestWriteJSON_NilBody(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteJSON(w, http.StatusNoContent, nil)

	assert.Equal(t, 204, w.Code)
	assert.Empty(t, w.Body.String())
}
