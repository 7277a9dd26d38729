package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kratos-host/provisioning-service/internal/config"
)

type Server struct {
	router  *gin.Engine
	handler *Handler
	webhook *WebhookHandler
	cfg     *config.Config
	db      *pgxpool.Pool
}

// Per-user limiter for the general user API
var userRateLimiter = NewRateLimiter(30, time.Minute)

// Stricter limiter for server control actions (power, commands)
var controlRateLimiter = NewRateLimiter(10, time.Minute)

func NewServer(cfg *config.Config, db *pgxpool.Pool, handler *Handler, webhook *WebhookHandler) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		handler: handler,
		webhook: webhook,
		cfg:     cfg,
		db:      db,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "provisioning-service",
		})
	})

	// Billing webhooks - authenticated by payload signature, nothing else
	s.router.POST("/api/webhooks/billing", s.webhook.HandleBillingWebhook)

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(userRateLimiter))
	{
		// Order management
		user.GET("/orders/:id", s.handler.GetOrder)
		user.POST("/orders/:id/cancel", s.handler.CancelOrder)
		user.POST("/orders/:id/reactivate", s.handler.ReactivateOrder)
		user.POST("/orders/:id/auto-renew", s.handler.SetAutoRenew)

		// Server control
		user.GET("/servers/:id/status", s.handler.GetServerStatus)
		user.GET("/servers/:id/logs", s.handler.GetServerLogs)
		user.POST("/servers/:id/power", RateLimitMiddleware(controlRateLimiter), s.handler.SendPowerAction)
		user.POST("/servers/:id/command", RateLimitMiddleware(controlRateLimiter), s.handler.SendCommand)
	}

	// Internal API - called by the storefront and cron
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		internal.POST("/checkout/finalize", s.handler.FinalizeCheckout)
		internal.POST("/cron/terminate-expired", s.handler.TerminateExpired)
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
