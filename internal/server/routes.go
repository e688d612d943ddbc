package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Scheduling API
	s.echo.POST("/api/dispatches", s.handleCreateDispatch)
	s.echo.GET("/api/dispatches", s.handleListDispatches)
	s.echo.GET("/api/dispatches/:id", s.handleGetDispatch)

	// Animation feed for simulation clients
	s.echo.GET("/ws/animations", s.handleWebSocket)
}
