package api

import (
	"context"
	"net/http"
	"time"

	"example.com/cargomarket/config"
	"example.com/cargomarket/internal/api/handlers"
	"example.com/cargomarket/internal/services"
	"example.com/cargomarket/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server represents the HTTP server
type Server struct {
	config        config.Config
	router        *gin.Engine
	httpServer    *http.Server
	jobs          *services.JobService
	applications  *services.ApplicationService
	notifications *services.NotificationService
	dashboards    *services.DashboardService
	matching      *services.MatchingService
	tracer        tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	jobs *services.JobService,
	applications *services.ApplicationService,
	notifications *services.NotificationService,
	dashboards *services.DashboardService,
	matching *services.MatchingService,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:        cfg,
		jobs:          jobs,
		applications:  applications,
		notifications: notifications,
		dashboards:    dashboards,
		matching:      matching,
		tracer:        tracer,
	}

	router := server.setupRouter()
	server.router = router

	httpServer := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}
	server.httpServer = httpServer

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.Default()

	// Recovery middleware
	router.Use(gin.Recovery())

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Authenticated API surface
	v1 := router.Group("/api/v1")
	v1.Use(SessionMiddleware())

	jobHandler := handlers.NewJobHandler(s.jobs, s.matching, s.tracer)
	jobHandler.RegisterRoutes(v1)

	applicationHandler := handlers.NewApplicationHandler(s.applications, s.tracer)
	applicationHandler.RegisterRoutes(v1)

	notificationHandler := handlers.NewNotificationHandler(s.notifications)
	notificationHandler.RegisterRoutes(v1)

	dashboardHandler := handlers.NewDashboardHandler(s.dashboards, s.matching)
	dashboardHandler.RegisterRoutes(v1)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
