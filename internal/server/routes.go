package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// registerRoutes wires every endpoint in spec §6.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	s.echo.POST("/db/execute", s.handleExecute)
	s.echo.POST("/db/schema", s.handleSchema)
	s.echo.POST("/db/query", s.handleQuery)
	s.echo.POST("/watches", s.handleCreateOrAttachWatch)
	s.echo.GET("/watches/:id", s.handleAttachWatch)
}

// handleHealth reports basic liveness, including this node's actor id.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"actorId": s.a.ActorID.String(),
	})
}
