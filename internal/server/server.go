package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/nijenhuis/api-guard/internal/config"
	"github.com/nijenhuis/api-guard/internal/logger"
	"github.com/nijenhuis/api-guard/internal/models"
	"github.com/nijenhuis/api-guard/internal/monitor"
	"github.com/nijenhuis/api-guard/internal/security"
	"go.uber.org/zap"
)

// Responder produces the business reply for a chat request. The actual
// chatbot lives outside this service; the server only guards the path to
// it and substitutes fallback text when the connection is degraded.
type Responder interface {
	Respond(ctx context.Context, message, language string) (string, error)
}

// Server represents the API server
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	router    *gin.Engine
	sec       *security.Manager
	monitor   *monitor.ConnectionMonitor
	logBuffer *logger.Buffer
	responder Responder
}

// New creates a new server instance
func New(cfg *config.Config, log *zap.Logger, buf *logger.Buffer, sec *security.Manager, mon *monitor.ConnectionMonitor, responder Responder) *Server {
	gin.SetMode(cfg.Server.Mode)

	s := &Server{
		cfg:       cfg,
		logger:    log,
		router:    gin.New(),
		sec:       sec,
		monitor:   mon,
		logBuffer: buf,
		responder: responder,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggerMiddleware())

	if s.cfg.Security.EnableCORS {
		s.router.Use(s.corsMiddleware())
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})

	// Probe targets: unauthenticated so the monitor and load balancers
	// can reach them
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ping", s.ping)

	api := s.router.Group("/api")
	{
		api.POST("/chat", s.securityMiddleware(models.PermissionChat), s.chat)
		api.GET("/status", s.securityMiddleware(models.PermissionHealth), s.connectionStatus)
		api.POST("/auth/token", s.securityMiddleware(models.PermissionChat), s.issueToken)
		api.POST("/auth/verify", s.verifyToken)
	}

	admin := s.router.Group("/admin")
	{
		admin.POST("/login", s.adminLogin)

		auth := admin.Group("/")
		auth.Use(s.adminAuthMiddleware())
		{
			auth.GET("/keys", s.listKeys)
			auth.POST("/keys", s.createKey)
			auth.DELETE("/keys/:key", s.revokeKey)

			auth.GET("/security/stats", s.securityStats)

			auth.GET("/connection/status", s.connectionStatus)
			auth.POST("/connection/reconnect", s.reconnect)

			auth.GET("/logs", s.getLogs)
			auth.DELETE("/logs", s.clearLogs)
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"summary": s.monitor.HealthSummary(),
	})
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(200, gin.H{"message": "pong"})
}
