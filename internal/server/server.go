// Package server exposes a running pipeline's status and metrics over HTTP.
//
// The server is optional. It serves GET /health with the run identifier and
// current phase, and GET /metrics in the Prometheus text format, and shuts
// down gracefully when its context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orthofisher/internal/logging"
)

const defaultShutdownTimeout = 5 * time.Second

// Status reports the state of the run being served.
type Status interface {
	RunID() string
	Phase() string
}

// Config holds server settings.
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
}

// Server is the status HTTP server.
type Server struct {
	cfg    Config
	echo   *echo.Echo
	status Status
	logger *logging.Logger
}

// HealthResponse is the JSON body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
	Phase  string `json:"phase"`
}

// New returns a server reporting status and serving metrics gathered from
// gatherer. A nil gatherer serves the default registry.
func New(cfg Config, status Status, gatherer prometheus.Gatherer, logger *logging.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{cfg: cfg, echo: e, status: status, logger: logger}
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return s
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		RunID:  s.status.RunID(),
		Phase:  s.status.Phase(),
	})
}

// Start listens on the configured address and serves until ctx is done.
// It returns http.ErrServerClosed after a graceful shutdown. Listen errors
// are returned before ready is called.
func (s *Server) Start(ctx context.Context, ready func(addr net.Addr)) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	s.echo.Listener = ln
	s.logger.Info(ctx, "status server listening", zap.String("addr", ln.Addr().String()))
	if ready != nil {
		ready(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
