package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"geografica/internal/apiclient"
	"geografica/internal/config"
	"geografica/internal/handler"
	"geografica/internal/middleware"
	"geografica/internal/realtime"
	"geografica/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Deps are the components the HTTP surface is built on
type Deps struct {
	Auth      *apiclient.AuthClient
	Children  *apiclient.ChildClient
	SafeZones *apiclient.SafeZoneClient
	History   *service.HistoryService
	Outbox    *service.Outbox
	Channel   *realtime.Channel
	Tracker   *service.LiveTracker
	Zones     *service.ZoneWatcher
	Hub       *handler.WSHub

	// Redis and NATS are optional; they are reported by /health
	Redis *redis.Client
	NATS  *nats.Conn
	// Limiter throttles failed logins when set
	Limiter middleware.RateLimiter
}

// Server represents the HTTP server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     *config.Config
	deps       Deps
	logger     *zap.Logger
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{config: cfg, deps: deps, logger: logger}
}

// Setup initializes routes and handlers
func (s *Server) Setup() {
	authHandler := handler.NewAuthHandler(s.deps.Auth, s.deps.Channel, s.deps.Tracker, s.deps.Zones, s.logger)
	childHandler := handler.NewChildHandler(s.deps.Children, s.deps.Tracker, s.logger)
	zoneHandler := handler.NewSafeZoneHandler(s.deps.SafeZones, s.deps.Zones, s.logger)
	historyHandler := handler.NewHistoryHandler(s.deps.History, s.deps.Outbox, s.logger)
	liveHandler := handler.NewLiveHandler(s.deps.Channel, s.deps.Tracker, s.deps.Children, s.deps.Zones, s.logger)
	wsHandler := handler.NewWSHandler(s.deps.Hub)

	s.router = gin.New()
	if err := s.router.SetTrustedProxies(s.config.TrustedProxies); err != nil {
		s.logger.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = s.router.SetTrustedProxies(nil)
	}
	s.router.Use(gin.Recovery(), middleware.RequestLogger(s.logger))

	// CORS middleware
	s.router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.router.GET("/health", s.health)

	// Public routes
	login := []gin.HandlerFunc{authHandler.Login}
	if s.deps.Limiter != nil && s.config.RateLimit.Enabled {
		limit := middleware.NewRateLimitMiddleware(s.deps.Limiter, s.config.LoginRateLimit(), s.logger)
		login = append([]gin.HandlerFunc{limit.FailuresOnly()}, login...)
	}
	s.router.POST("/api/auth/login", login...)
	s.router.POST("/api/auth/register", authHandler.Register)
	s.router.POST("/api/auth/logout", authHandler.Logout)

	requireSession := middleware.RequireSession(s.deps.Auth)

	s.router.GET("/ws/live", requireSession, wsHandler.HandleLive)
	s.router.GET("/ws/stats", wsHandler.GetStats)

	// Protected routes
	api := s.router.Group("/api")
	api.Use(requireSession)
	{
		api.GET("/me", authHandler.Me)

		// Children
		api.GET("/children", childHandler.List)
		api.POST("/children", childHandler.Register)
		api.PATCH("/children/:id", childHandler.Update)
		api.POST("/children/:id/code", childHandler.RegenerateCode)

		// Safe zones
		api.GET("/safe-zones", zoneHandler.List)
		api.POST("/safe-zones", zoneHandler.Create)
		api.GET("/safe-zones/:id", zoneHandler.Get)
		api.PATCH("/safe-zones/:id", zoneHandler.Update)
		api.DELETE("/safe-zones/:id", zoneHandler.Delete)

		// Location history
		api.GET("/children/:id/history", historyHandler.Get)
		api.POST("/children/:id/history", historyHandler.Record)
		api.POST("/outbox/flush", historyHandler.Flush)

		// Live tracking
		api.GET("/live", liveHandler.State)
		api.POST("/live/connect", liveHandler.Connect)
		api.POST("/live/disconnect", liveHandler.Disconnect)
		api.POST("/children/:id/watch", liveHandler.Watch)
		api.DELETE("/children/:id/watch", liveHandler.Unwatch)
		api.POST("/children/:id/locate", liveHandler.Locate)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.APIPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	health := gin.H{
		"status":         "ok",
		"authenticated":  s.deps.Auth.IsAuthenticated(),
		"live_connected": s.deps.Channel.IsConnected(),
		"browsers":       s.deps.Hub.GetClientCount(),
	}

	if s.deps.Redis != nil {
		if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
			health["redis"] = "unavailable"
		} else {
			health["redis"] = "ok"
		}
	} else {
		health["redis"] = "disabled"
	}

	if s.deps.NATS != nil {
		health["nats"] = s.deps.NATS.Status().String()
	} else {
		health["nats"] = "disabled"
	}

	if pending, err := s.deps.Outbox.Pending(ctx); err == nil {
		health["outbox_pending"] = pending
	}

	c.JSON(http.StatusOK, health)
}

// Run starts the HTTP server built by Setup and blocks until it stops
func (s *Server) Run() error {
	if s.httpServer == nil {
		return errors.New("server not set up")
	}

	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetRouter returns the gin router for testing
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP server shutdown", zap.Error(err))
		}
	}
	s.deps.Hub.Stop()
	s.logger.Info("WebSocket hub stopped")
	s.deps.Channel.Close()
	s.logger.Info("Live channel closed")
}
