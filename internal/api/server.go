// Package api is the control surface of spec.md §6: gin handlers for
// start/status/control plus the websocket event subscription, grounded on
// the teacher's internal/infrastructure/api/rest handler-per-file layout
// (backend/ and go/ variants) and go/pkg/server/server.go's gin.Engine
// wiring.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/netrun/flowengine/internal/observer"
	"github.com/netrun/flowengine/internal/registry"
)

// Server owns the gin.Engine and the handlers registered on it.
type Server struct {
	router   *gin.Engine
	registry *registry.Registry
	ws       *observer.Handler
	log      *slog.Logger
}

// New builds a Server with routes registered, mirroring the teacher's
// Server.setupRoutes step in go/pkg/server/server.go.
func New(reg *registry.Registry, wsHandler *observer.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLoggingMiddleware(log))

	s := &Server{router: router, registry: reg, ws: wsHandler, log: log}
	s.routes()
	return s
}

// Router exposes the underlying gin.Engine, e.g. for http.Server.Handler.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.POST("/executions", s.handleStart)
	v1.GET("/executions", s.handleList)
	v1.GET("/executions/:id", s.handleGet)
	v1.POST("/executions/:id/control", s.handleControl)
	v1.GET("/executions/:id/events", s.ws.ServeWS)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
