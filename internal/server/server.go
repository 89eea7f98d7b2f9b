package server

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server is the orchestration core's HTTP surface: POST /generate and
// POST /ai/job/{jobId}/confirm-delivery, per spec.md §6. Grounded on the
// teacher's echoServer.Group/middleware wiring in server/router/api/v1,
// stripped of the gRPC-Gateway/Connect machinery that surface doesn't need.
type Server struct {
	echo    *echo.Echo
	handler *Handler
	addr    string
}

// New builds a Server listening on addr, with handler's routes registered.
func New(addr string, handler *Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	handler.Register(e)

	return &Server{echo: e, handler: handler, addr: addr}
}

// Start blocks serving HTTP until the server is shut down or fails.
func (s *Server) Start(context.Context) error {
	return s.echo.Start(s.addr)
}

// Shutdown gracefully drains in-flight requests before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
