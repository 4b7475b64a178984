// Package api hosts the engine's HTTP surface: the CsmlRequest ingest
// endpoint, bot-version upload, and a health check, grounded on the
// teacher's pkg/api/server.go Echo v5 wiring (dependencies passed to
// NewServer, a ValidateWiring startup check, body-size limit, security
// headers).
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/csml-run/csml-engine/pkg/bot"
	"github.com/csml-run/csml-engine/pkg/driver"
	"github.com/csml-run/csml-engine/pkg/engversion"
	"github.com/csml-run/csml-engine/pkg/store"
)

// Server is the engine's HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	driver   *driver.Driver
	versions *bot.Versions
	store    store.Store
	health   HealthChecker // nil if the backend has no external health probe (e.g. memstore)
}

// HealthChecker is implemented by storage backends that have something to
// ping (spec.md §6 has no dedicated health contract; grounded on the
// teacher's database.Health(ctx, *sql.DB) check).
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// NewServer wires an Echo v5 server around a Driver and bot.Versions. health
// may be nil for the in-memory store, which has nothing to ping.
func NewServer(d *driver.Driver, versions *bot.Versions, s store.Store, health HealthChecker) *Server {
	e := echo.New()

	srv := &Server{
		echo:     e,
		driver:   d,
		versions: versions,
		store:    s,
		health:   health,
	}

	srv.setupRoutes()
	return srv
}

// ValidateWiring checks that every required dependency was supplied to
// NewServer, catching wiring gaps at startup rather than as a 500 at
// request time (grounded on the teacher's Server.ValidateWiring).
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.driver == nil {
		errs = append(errs, fmt.Errorf("driver not set"))
	}
	if s.versions == nil {
		errs = append(errs, fmt.Errorf("bot versions manager not set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Server) setupRoutes() {
	// Body size limit set above a typical CsmlRequest payload to account
	// for JSON envelope overhead while still rejecting multi-MB abuse.
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/interact", s.interactHandler)
	v1.POST("/bots/:bot_id/versions", s.createBotVersionHandler)
	v1.GET("/bots/:bot_id/messages", s.getClientMessagesHandler)
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener runs the HTTP server on a pre-created listener, used by
// tests to bind a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Version: engversion.Full()}
	if s.health != nil {
		if err := s.health.Ping(reqCtx); err != nil {
			resp.Status = "unhealthy"
			resp.Database = err.Error()
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		resp.Database = "ok"
	}
	return c.JSON(http.StatusOK, resp)
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database,omitempty"`
}
