package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/medsimlabs/vitalcast/internal/broadcast"
	"github.com/medsimlabs/vitalcast/internal/config"
	"github.com/medsimlabs/vitalcast/internal/domain"
	apperrors "github.com/medsimlabs/vitalcast/internal/errors"
)

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	store     domain.DispatchStore
	hub       *broadcast.Hub
	limits    *ConnectionLimits
	db        postgresHealthChecker
	redis     redisHealthChecker
	startTime time.Time
}

// NewServer wires the HTTP surface. redis may be nil when the instance runs
// without leader election; the readiness probe then skips the Redis check.
func NewServer(cfg *config.Config, store domain.DispatchStore, hub *broadcast.Hub, db postgresHealthChecker, redis redisHealthChecker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		store:     store,
		hub:       hub,
		limits:    NewConnectionLimits(cfg.MaxClients, cfg.MaxClientsPerIP, cfg.ConnRatePerSec, cfg.ConnRateBurst),
		db:        db,
		redis:     redis,
		startTime: time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
