package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"studysync/internal/cache"
	"studysync/internal/service"
	"studysync/internal/transport/rest/handler"
	"studysync/internal/transport/rest/middleware"
	"studysync/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService  *service.AuthService
	GroupService *service.GroupService
	ChatService  *service.ChatService
	CallService  *service.CallService
	Presence     cache.PresenceCache
	WSHub        *ws.Hub
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	groupHandler := handler.NewGroupHandler(c.GroupService, c.ChatService, c.Presence)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.GroupService, c.ChatService, c.CallService, c.Presence)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	// WebSocket route (public with token in query param)
	v1.HandleFunc("/ws", wsHandler.ServeWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Authenticated routes
	userRoutes := v1.NewRoute().Subrouter()
	userRoutes.Use(authMW.RequireUser)

	userRoutes.HandleFunc("/groups", groupHandler.Create).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/groups", groupHandler.List).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/groups/join", groupHandler.Join).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/groups/{id}", groupHandler.Get).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/groups/{id}/messages", groupHandler.Messages).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/groups/{id}/note", groupHandler.Note).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/groups/{id}/questions", groupHandler.Questions).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/groups/{id}/online", groupHandler.Online).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
