package main

import (
	"context"
	"log"
	"time"

	"veilchat/config"
	"veilchat/internal/domain/chat"
	"veilchat/internal/domain/keys"
	"veilchat/internal/domain/user"
	"veilchat/internal/handler"
	"veilchat/internal/presence"
	"veilchat/internal/redis"
	"veilchat/internal/repository"
	"veilchat/internal/server"
	"veilchat/internal/services"
	"veilchat/internal/websocket"
	"veilchat/pkg/database"
	"veilchat/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	loggerMode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		loggerMode = logger.ProductionMode
	}
	l := logger.New(loggerMode)
	logger.SetGlobalLogger(l)

	database.Connect(cfg)

	if err := database.DB.AutoMigrate(
		&user.User{},
		&user.Session{},
		&keys.Device{},
		&keys.OneTimePreKey{},
		&chat.Room{},
		&chat.RoomMember{},
		&chat.Connection{},
		&chat.Message{},
		&chat.WrappedKey{},
		&chat.MessageSeen{},
	); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redis.Initialize(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	redisClient := redis.GetClient()

	userRepo := repository.NewUserRepository(database.DB)
	keysRepo := repository.NewKeysRepository(database.DB)
	chatRepo := repository.NewChatRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := presence.NewRegistry()
	hub := websocket.NewHub(registry)
	go hub.Run(ctx)

	publisher := redis.NewPublisher(redisClient)
	dispatcher := websocket.NewDispatcher(hub, publisher, l)

	bridge := websocket.NewRedisBridge(redis.NewSubscriber(redisClient), hub)
	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			l.Errorf("pubsub bridge stopped: %s", err.Error())
		}
	}()

	presenceStore := redis.NewPresenceStore(redisClient, 5*time.Minute)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := presenceStore.PruneStale(ctx); err != nil {
					l.Errorf("presence prune failed: %s", err.Error())
				}
			}
		}
	}()

	authService := services.NewAuthService(userRepo, cfg)
	keysService := services.NewKeysService(keysRepo, cfg.DBTimeout())
	chatService := services.NewChatService(chatRepo, cfg.DBTimeout())
	messageService := services.NewMessageService(messageRepo, chatService, dispatcher, cfg.HistoryPage, cfg.DBTimeout())

	limiter := redis.NewRateLimiter(redisClient, redis.DefaultRateLimitConfig())

	wsHandler := websocket.NewHandler(
		authService,
		keysService,
		chatService,
		messageService,
		hub,
		dispatcher,
		presenceStore,
		l,
	)

	handlers := &server.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Keys:     handler.NewKeysHandler(keysService),
		Chat:     handler.NewChatHandler(chatService),
		Messages: handler.NewMessageHandler(messageService),
		WS:       wsHandler,
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(handlers, authService, limiter)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
