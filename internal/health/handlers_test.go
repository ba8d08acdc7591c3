package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus Status
	}{
		{"ok", nil, http.StatusOK, StatusOK},
		{"degraded", &DegradedError{Reason: "slow"}, http.StatusOK, StatusDegraded},
		{"down", assert.AnError, http.StatusServiceUnavailable, StatusDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(nil)
			m.Register(&mockChecker{name: "test", err: tt.err})
			h := NewHandler(m)

			rr := httptest.NewRecorder()
			h.HandleHealth(rr, httptest.NewRequest("GET", "/health", nil))

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Equal(t, "no-cache, no-store, must-revalidate", rr.Header().Get("Cache-Control"))

			var resp Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.NotEmpty(t, resp.Version)
			assert.NotEmpty(t, resp.Uptime)
			assert.Contains(t, resp.Checks, "test")
		})
	}
}

func TestHandleReady(t *testing.T) {
	m := NewManager(nil)
	m.Register(&mockChecker{name: "test"})
	h := NewHandler(m)

	// no results yet
	rr := httptest.NewRecorder()
	h.HandleReady(rr, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	m.RunChecks(context.Background())

	rr = httptest.NewRecorder()
	h.HandleReady(rr, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleLive(t *testing.T) {
	h := NewHandler(NewManager(nil))

	rr := httptest.NewRecorder()
	h.HandleLive(rr, httptest.NewRequest("GET", "/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp["status"])
}
