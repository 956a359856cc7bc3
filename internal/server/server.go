// Package server provides the HTTP surface for the write-broadcast
// and live-query core (spec §6), built on Echo v4 the way the teacher
// builds its XRPC/management surface.
package server

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/MuhtasimTanmoy/corrosion/internal/agent"
	"github.com/MuhtasimTanmoy/corrosion/internal/matcher"
)

// Server wraps the Echo instance and the process-wide agent handle.
type Server struct {
	echo *echo.Echo
	addr string
	a    *agent.Agent
	disp *matcher.Dispatcher
}

// New creates a configured Echo server with all routes registered.
func New(a *agent.Agent, listenAddr string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true // we log the listen address ourselves

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{echo: e, addr: listenAddr, a: a, disp: matcher.NewDispatcher(a.Matchers)}
	s.registerRoutes()
	return s
}

// dispatcher returns the writer.Dispatcher routing committed frames to
// registered matchers.
func (s *Server) dispatcher() *matcher.Dispatcher { return s.disp }

// Echo exposes the underlying instance, for tests that want to drive
// requests through httptest without a real listener.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start begins listening for HTTP requests. It blocks until ctx is
// cancelled, then performs a graceful shutdown allowing in-flight
// requests — including open watch streams — to complete.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("corrosion: listening on %s", s.addr)
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("corrosion: shutting down HTTP server")
		if err := s.a.Shutdown(context.Background()); err != nil {
			log.Printf("corrosion: agent shutdown error: %v", err)
		}
		return s.echo.Shutdown(context.Background())
	}
}
