package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"veilchat/config"
	"veilchat/internal/handler"
	"veilchat/internal/middleware"
	"veilchat/internal/redis"
	"veilchat/internal/services"
	"veilchat/internal/transport/httpdto"
	"veilchat/internal/websocket"
	"veilchat/pkg/database"
	"veilchat/pkg/logger"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Keys     *handler.KeysHandler
	Chat     *handler.ChatHandler
	Messages *handler.MessageHandler
	WS       *websocket.Handler
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, limiter *redis.RateLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))
	if limiter != nil {
		s.engine.Use(middleware.RateLimitMiddleware(limiter))
	}

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := database.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	authRequired := middleware.AuthMiddleware(authService)

	auth := s.engine.Group("/v1/auth")
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/logout", authRequired, handlers.Auth.Logout)
	}

	keys := s.engine.Group("/v1/keys", authRequired)
	{
		keys.POST("/devices", handlers.Keys.RegisterDevice)
		keys.PATCH("/devices/:id", handlers.Keys.SetDeviceEnabled)
		keys.DELETE("/devices/:id", handlers.Keys.RemoveDevice)
		keys.POST("/devices/:id/prekeys", handlers.Keys.UploadPrekeys)
		keys.GET("/devices/:id/prekeys/count", handlers.Keys.PrekeyCount)
		keys.POST("/devices/:id/claim", handlers.Keys.ClaimBundle)
		keys.GET("/users/:id/devices", handlers.Keys.ListUserDevices)
	}

	rooms := s.engine.Group("/v1/rooms", authRequired)
	{
		rooms.POST("", handlers.Chat.CreateRoom)
		rooms.POST("/:id/members", handlers.Chat.AddMembers)
		rooms.GET("/:id/members", handlers.Chat.ListMembers)
	}

	connections := s.engine.Group("/v1/connections", authRequired)
	{
		connections.POST("", handlers.Chat.Connect)
		connections.GET("", handlers.Chat.ListConnections)
		connections.PATCH("/:id", handlers.Chat.RespondConnection)
		connections.DELETE("/:id", handlers.Chat.RemoveConnection)
	}

	messages := s.engine.Group("/v1/messages", authRequired)
	{
		if limiter != nil {
			messages.POST("", middleware.MessageRateLimitMiddleware(limiter), handlers.Messages.Send)
		} else {
			messages.POST("", handlers.Messages.Send)
		}
		messages.GET("", handlers.Messages.History)
		messages.POST("/:id/seen", handlers.Messages.MarkSeen)
	}

	// The socket authenticates itself from the token query param; bearer
	// middleware does not apply here.
	s.engine.GET("/v1/ws", handlers.WS.Connect)
}

func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
