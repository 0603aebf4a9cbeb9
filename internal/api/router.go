package api

import (
	"github.com/gin-gonic/gin"
	"github.com/leozw/uptime-pulse/internal/api/handlers"
	"github.com/leozw/uptime-pulse/internal/api/middleware"
	"github.com/leozw/uptime-pulse/internal/config"
	"go.uber.org/zap"
)

type Server struct {
	Config  *config.Config
	Router  *gin.Engine
	handler *handlers.Handler
}

func NewServer(cfg *config.Config, handler *handlers.Handler, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	server := &Server{
		Config:  cfg,
		Router:  router,
		handler: handler,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", s.handler.Health)
	s.Router.GET("/ready", s.handler.Ready)
	s.Router.GET("/metrics", s.handler.Metrics)

	api := s.Router.Group("/api/v1")
	api.Use(middleware.AuthRequired(s.Config.Auth.TriggerSecret))
	{
		api.POST("/check-cycle", s.handler.RunCheckCycle)
	}
}
