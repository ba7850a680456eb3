package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"studysync/internal/cache"
	"studysync/internal/config"
	"studysync/internal/repository"
	"studysync/internal/service"
	"studysync/internal/transport/rest"
	"studysync/internal/transport/ws"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg := config.Load()
	if os.Getenv("MONGO_URI") == "" {
		log.Println("Warning: MONGO_URI not set, using default")
	}
	if os.Getenv("REDIS_ADDR") == "" {
		log.Println("Warning: REDIS_ADDR not set, using default")
	}

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	// Ping MongoDB
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB)

	// Redis connection
	redisAddr := strings.TrimPrefix(cfg.RedisAddr, "redis://")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer rdb.Close()

	// Ping Redis
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize WebSocket hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// Initialize repositories
	userRepo := repository.NewUserRepo(db)
	groupRepo := repository.NewGroupRepo(db)
	messageRepo := repository.NewMessageRepo(db)
	noteRepo := repository.NewNoteRepo(db)
	questionRepo := repository.NewQuestionRepo(db)
	callRepo := repository.NewCallRepo(db)

	// Initialize caches
	groupCache := cache.NewGroupCache(rdb)
	presenceCache := cache.NewPresenceCache(rdb)

	// Initialize services
	authSvc := service.NewAuthService(userRepo)
	groupSvc := service.NewGroupService(groupRepo, groupCache)
	chatSvc := service.NewChatService(groupRepo, userRepo, messageRepo, noteRepo, questionRepo)
	callRegistry := service.NewCallRegistry()
	callSvc := service.NewCallService(groupRepo, callRepo, callRegistry)

	// Inject broadcaster (wsHub implements service.Broadcaster)
	chatSvc.SetBroadcaster(wsHub)
	callSvc.SetBroadcaster(wsHub)

	// Create router with container
	container := &rest.Container{
		AuthService:  authSvc,
		GroupService: groupSvc,
		ChatService:  chatSvc,
		CallService:  callSvc,
		Presence:     presenceCache,
		WSHub:        wsHub,
	}

	router := rest.NewRouter(container)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.HTTPPort)
		log.Println("Endpoints:")
		log.Println("  POST /v1/auth/register")
		log.Println("  POST /v1/auth/login")
		log.Println("  POST/GET /v1/groups")
		log.Println("  POST /v1/groups/join")
		log.Println("  GET  /v1/groups/{id}/messages|note|questions|online")
		log.Println("  WS   /v1/ws")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
