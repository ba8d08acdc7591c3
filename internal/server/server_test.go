package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/playout/internal/config"
	"github.com/zsiec/playout/internal/errors"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/player"
	"github.com/zsiec/playout/internal/rational"
	"github.com/zsiec/playout/pkg/version"
)

type fakeController struct {
	mu      sync.Mutex
	seeks   []rational.Rational
	found   bool
	cleared int
	layers  []string
	gains   map[string]float32
}

func (f *fakeController) Status() player.Status {
	return player.Status{
		Mode:             player.ModeRender,
		DecodeMethod:     "software",
		ActiveLayers:     []string{"a", "b"},
		VideoQueueFrames: 3,
		VideoDecodeReady: true,
		AudioDecodeReady: true,
	}
}

func (f *fakeController) Seek(pts rational.Rational) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, pts)
	return f.found
}

func (f *fakeController) Clear() {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
}

func (f *fakeController) ClearLayer(id string) {
	f.mu.Lock()
	f.layers = append(f.layers, id)
	f.mu.Unlock()
}

func (f *fakeController) SetLayerGain(id string, gain float32) {
	f.mu.Lock()
	if f.gains == nil {
		f.gains = make(map[string]float32)
	}
	f.gains[id] = gain
	f.mu.Unlock()
}

func newTestServer(ctrl Controller) *Server {
	cfg := &config.ServerConfig{
		Port:            0,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
	return New(cfg, ctrl, "/metrics", logger.NewNullLogger())
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func TestHandleVersion(t *testing.T) {
	s := newTestServer(&fakeController{})

	rr := do(t, s, "GET", "/version", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var info version.Info
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(&fakeController{})

	rr := do(t, s, "GET", "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var st player.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, player.ModeRender, st.Mode)
	assert.Equal(t, []string{"a", "b"}, st.ActiveLayers)
	assert.Equal(t, int64(3), st.VideoQueueFrames)
	assert.True(t, st.VideoDecodeReady)
}

func TestHandleSeek(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantSeek   bool
	}{
		{"valid", SeekRequest{PTS: "3/2"}, http.StatusOK, true},
		{"whole seconds", SeekRequest{PTS: "2"}, http.StatusOK, true},
		{"not a rational", SeekRequest{PTS: "soon"}, http.StatusBadRequest, false},
		{"negative", SeekRequest{PTS: "-1/2"}, http.StatusBadRequest, false},
		{"bad body", "not an object", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{found: true}
			s := newTestServer(ctrl)

			rr := do(t, s, "POST", "/api/v1/seek", tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantSeek, len(ctrl.seeks) == 1)

			if tt.wantStatus != http.StatusOK {
				var resp errors.ErrorResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, errors.ErrorTypeValidation, resp.Error.Type)
				return
			}
			var resp SeekResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.True(t, resp.Found)
			assert.Equal(t, ctrl.seeks[0].String(), resp.PTS)
		})
	}
}

func TestHandleClear(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(ctrl)

	rr := do(t, s, "POST", "/api/v1/clear", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 1, ctrl.cleared)

	rr = do(t, s, "DELETE", "/api/v1/layers/layer-1", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"layer-1"}, ctrl.layers)
}

func TestHandleLayerGain(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(ctrl)

	rr := do(t, s, "PUT", "/api/v1/layers/layer-1/gain", GainRequest{Gain: 0.5})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, float32(0.5), ctrl.gains["layer-1"])

	rr = do(t, s, "PUT", "/api/v1/layers/layer-1/gain", GainRequest{Gain: -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, float32(0.5), ctrl.gains["layer-1"])
}

func TestRouting_Errors(t *testing.T) {
	s := newTestServer(&fakeController{})

	rr := do(t, s, "GET", "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/seek"},
		{"POST", "/api/v1/status"},
		{"GET", "/api/v1/clear"},
		{"POST", "/api/v1/layers/layer-1"},
		{"GET", "/api/v1/layers/layer-1/gain"},
	}
	for _, tt := range tests {
		rr = do(t, s, tt.method, tt.path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, "%s %s", tt.method, tt.path)

		var resp errors.ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}

	rr = do(t, s, "GET", "/api/v1/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeController{})
	do(t, s, "GET", "/api/v1/status", nil)

	rr := do(t, s, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `playout_http_requests_total{method="GET",route="/api/v1/status",status="200"}`)
}

func TestCORSMiddleware(t *testing.T) {
	s := newTestServer(&fakeController{})
	handler := s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("OPTIONS", "/api/v1/seek", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(&fakeController{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/version", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(&fakeController{})

	rr := do(t, s, "GET", "/live", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	// readiness has no results until a check has run
	rr = do(t, s, "GET", "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = do(t, s, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"decoder"`)
	assert.Contains(t, rr.Body.String(), `"playback"`)

	rr = do(t, s, "GET", "/ready", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
