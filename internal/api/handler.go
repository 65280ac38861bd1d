package api

import (
	"net/http"
	"time"

	"spot-trader/internal/engine"
	"spot-trader/internal/events"
	"spot-trader/internal/monitor"

	"github.com/gin-gonic/gin"
)

// Server wires the operator HTTP endpoints around the engine service.
type Server struct {
	Router          *gin.Engine
	Engine          engine.Service
	Bus             *events.Bus
	Metrics         *monitor.SystemMetrics
	JWTSecret       string
	OperatorKey     string
	OperatorKeyHash string

	limits *ipRateLimiter
}

// Config holds server dependencies.
type Config struct {
	Engine          engine.Service
	Bus             *events.Bus
	Metrics         *monitor.SystemMetrics
	JWTSecret       string
	OperatorKey     string
	OperatorKeyHash string
}

func NewServer(cfg Config) *Server {
	r := gin.New()
	limits := newIPRateLimiter()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(cfg.Metrics))
	r.Use(limits.Middleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:          r,
		limits:          limits,
		Engine:          cfg.Engine,
		Bus:             cfg.Bus,
		Metrics:         cfg.Metrics,
		JWTSecret:       cfg.JWTSecret,
		OperatorKey:     cfg.OperatorKey,
		OperatorKeyHash: cfg.OperatorKeyHash,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		// Auth (no auth required)
		api.POST("/auth/login", s.login)

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/system/status", s.getSystemStatus)
			protected.GET("/metrics", s.getMetrics)
			protected.GET("/positions", s.getPositions)
			protected.GET("/positions/closed", s.getClosedPositions)
			protected.GET("/orders", s.getOrders)
			protected.GET("/balance", s.getBalance)
			protected.GET("/risk", s.getRiskMetrics)
			protected.GET("/daily", s.getDailyStats)

			// Operator actions
			protected.POST("/positions/:id/close", s.closePosition)
			protected.POST("/halt", s.halt)
			protected.POST("/resume", s.resume)
			protected.POST("/flatten", s.flattenAll)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
