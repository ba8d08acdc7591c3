package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/playout/internal/logger"
)

func TestHandleError(t *testing.T) {
	handler := NewErrorHandler(logger.NewNullLogger())

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedType   ErrorType
	}{
		{"validation", NewValidationError("invalid input"), http.StatusBadRequest, ErrorTypeValidation},
		{"standard error", errors.New("something went wrong"), http.StatusInternalServerError, ErrorTypeInternal},
		{"not found", NewNotFoundError("layer"), http.StatusNotFound, ErrorTypeNotFound},
		{"out of range", NewOutOfRangeError("seek before cursor"), http.StatusRequestedRangeNotSatisfiable, ErrorTypeOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/status", nil)
			req.Header.Set("X-Request-ID", "trace-1")
			w := httptest.NewRecorder()

			handler.HandleError(w, req, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedType, resp.Error.Type)
			assert.Equal(t, "trace-1", resp.TraceID)
		})
	}
}

func TestMiddlewareRecoversPanic(t *testing.T) {
	handler := NewErrorHandler(logger.NewNullLogger())
	h := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleNotFoundAndMethod(t *testing.T) {
	handler := NewErrorHandler(logger.NewNullLogger())

	w := httptest.NewRecorder()
	handler.HandleNotFound(w, httptest.NewRequest("GET", "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	handler.HandleMethodNotAllowed(w, httptest.NewRequest("PUT", "/version", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
