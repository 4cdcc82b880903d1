package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/auth"
	"github.com/Daom5095/BackendChatPrivate-sub000/internal/chat"
	"github.com/Daom5095/BackendChatPrivate-sub000/internal/config"
	"github.com/Daom5095/BackendChatPrivate-sub000/internal/db"
	"github.com/Daom5095/BackendChatPrivate-sub000/internal/ratelimit"
	"github.com/Daom5095/BackendChatPrivate-sub000/internal/user"
)

func main() {
	// 1. Config & Logging
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	logger := newLogger(cfg.LogLevel)

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DBDSN)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	logger.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	logger.Info("✅ Database Schema Initialized")

	// 3. Connect to Redis (delivery relay between instances)
	var redisClient *redis.Client
	if cfg.RelayEnabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		logger.Info("✅ Connected to Redis")
	}

	// 4. User Feature: accounts, tokens, public-key directory
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	userHandler := user.NewHandler(userService)

	// 5. Chat Feature: registry, guard, store, fan-out engine
	chatRepo := chat.NewRepository(database.Conn)
	registry := chat.NewRegistry()
	guard := chat.NewGuard(chatRepo, logger)

	var relay chat.Relay
	if redisClient != nil {
		redisRelay := chat.NewRedisRelay(redisClient, registry, logger)
		go redisRelay.Run(context.Background())
		relay = redisRelay
	}

	engine := chat.NewEngine(guard, chatRepo, registry, relay, logger)
	gate := auth.NewGate(userService, logger)
	chatHandler := chat.NewHandler(gate, engine, registry, chatRepo, guard, logger)

	// 6. Abuse control on the auth entry points
	limiter := ratelimit.NewLimiter(ratelimit.DefaultRules())

	authMiddleware := auth.NewMiddleware(userService)

	// 7. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public routes, each behind its own token bucket
	r.With(limiter.Middleware(ratelimit.FamilyRegister, logger)).
		Post("/register", userHandler.Register)
	r.With(limiter.Middleware(ratelimit.FamilyLogin, logger)).
		Post("/login", userHandler.Login)

	// WebSocket: NOT behind the auth middleware. The gate authenticates at
	// connect and an invalid credential leaves the session anonymous
	// instead of rejecting the connection.
	r.Get("/ws", chatHandler.ServeWs)

	// Protected REST routes (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Put("/api/keys", userHandler.SetPublicKey)
		r.Get("/api/keys/{userID}", userHandler.GetPublicKey)

		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Post("/api/conversations/{conversationID}/participants", chatHandler.AddParticipant)
		r.Delete("/api/conversations/{conversationID}/participants/{userID}", chatHandler.RemoveParticipant)
		r.Get("/api/conversations/{conversationID}/messages", chatHandler.GetChatHistory)
	})

	logger.Info("🚀 Server starting", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal(err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
