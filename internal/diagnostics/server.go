// Package diagnostics exposes the loopback-only HTTP surface (A5): health
// and Prometheus metrics, entirely separate from the IPC control-plane
// endpoint in internal/ipc.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kellyelton/maxbackup/internal/health"
	"github.com/kellyelton/maxbackup/pkg/logger"
)

// Server is the diagnostics HTTP listener.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	checker    *health.Checker
	logger     logger.Logger
}

// New builds a diagnostics server bound to addr (expected to be a loopback
// address; callers should reject anything else before calling New — see
// bootstrap.ValidateDiagnostics).
func New(addr string, checker *health.Checker, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		checker: checker,
		logger:  log,
	}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Start begins serving and blocks until the listener is closed. Run it in
// its own goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on diagnostics address %q: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	s.logger.Info("diagnostics surface listening", logger.String("address", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Addr returns the listener's bound address. Only valid after Start has
// begun listening.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	result := s.checker.RunChecks()

	status := http.StatusOK
	if result.Status == health.StatusDown {
		status = http.StatusServiceUnavailable
	}

	body, err := json.Marshal(result)
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to encode health result")
		return
	}

	c.Data(status, "application/json", body)
}
