package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/playout/internal/config"
	"github.com/zsiec/playout/internal/errors"
	"github.com/zsiec/playout/internal/health"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/player"
	"github.com/zsiec/playout/internal/rational"
)

// Controller is the part of the player the debug server exposes
type Controller interface {
	Status() player.Status
	Seek(pts rational.Rational) bool
	Clear()
	ClearLayer(layerID string)
	SetLayerGain(layerID string, gain float32)
}

// Server is the debug HTTP server: status, control, version and metrics.
type Server struct {
	config       *config.ServerConfig
	metricsPath  string
	router       *mux.Router
	httpServer   *http.Server
	player       Controller
	healthMgr    *health.Manager
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
}

// healthInterval is how often the readiness checks run in the background
const healthInterval = 30 * time.Second

// New creates a server with all routes registered. An empty metricsPath
// leaves metrics to a dedicated listener.
func New(cfg *config.ServerConfig, ctrl Controller, metricsPath string, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNullLogger()
	}
	s := &Server{
		config:       cfg,
		metricsPath:  metricsPath,
		router:       mux.NewRouter(),
		player:       ctrl,
		healthMgr:    health.NewManager(log),
		logger:       logger.WithComponent(log, "server"),
		errorHandler: errors.NewErrorHandler(log),
	}
	s.healthMgr.Register(health.NewDecoderChecker(ctrl))
	s.healthMgr.Register(health.NewStallChecker(ctrl))
	s.setupRoutes()
	return s
}

// Start serves until ctx is done, then shuts down within the configured
// timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go s.healthMgr.StartPeriodicChecks(ctx, healthInterval)

	s.logger.WithField("addr", ln.Addr().String()).Info("Starting debug server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down debug server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("Debug server shutdown complete")
	return nil
}

const apiPrefix = "/api/v1"

func (s *Server) setupRoutes() {
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.errorHandler.Middleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.corsMiddleware)

	healthHandler := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	s.router.HandleFunc("/ready", healthHandler.HandleReady).Methods("GET")
	s.router.HandleFunc("/live", healthHandler.HandleLive).Methods("GET")

	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")
	if s.metricsPath != "" {
		s.router.Handle(s.metricsPath, promhttp.Handler()).Methods("GET")
	}

	// full paths on the root router so method mismatches reach the 405 handler
	s.router.HandleFunc(apiPrefix+"/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc(apiPrefix+"/seek", s.handleSeek).Methods("POST")
	s.router.HandleFunc(apiPrefix+"/clear", s.handleClear).Methods("POST")
	s.router.HandleFunc(apiPrefix+"/layers/{id}", s.handleClearLayer).Methods("DELETE")
	s.router.HandleFunc(apiPrefix+"/layers/{id}/gain", s.handleLayerGain).Methods("PUT")

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)
}

// Router returns the router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}
