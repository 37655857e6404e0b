package server

import (
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/observer/broker/internal/api"
	"github.com/observer/broker/internal/auth"
	"github.com/observer/broker/internal/broker"
	"github.com/observer/broker/internal/config"
	"github.com/observer/broker/internal/database"
	_ "github.com/observer/broker/internal/docs"
	"github.com/observer/broker/internal/ratelimit"
)

// Dependencies holds every service the HTTP server wires into routes.
type Dependencies struct {
	DB          *database.DB
	AuthService *auth.Service
	AuthHandler *api.AuthHandler
	RoomHandler *api.RoomHandler
	Health      *api.HealthHandler
	WSHandler   *broker.Handler
	RESTLimiter *ratelimit.RESTLimiter
	Logger      *slog.Logger
}

// New creates an HTTP server with every route from spec 6.2 plus the
// message channel upgrade endpoint.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()
	registerRoutes(mux, deps)

	handler := chainMiddleware(mux,
		requestIDMiddleware,
		corsMiddleware(cfg),
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)

	return &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.Handle("GET /health", deps.Health)
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/auth/register", deps.AuthHandler.Register)
	apiMux.HandleFunc("POST /api/auth/login", deps.AuthHandler.Login)

	authMiddleware := auth.Middleware(deps.AuthService)
	optionalAuth := auth.OptionalMiddleware(deps.AuthService)

	apiMux.Handle("POST /api/rooms", authMiddleware(http.HandlerFunc(deps.RoomHandler.CreateRoom)))
	apiMux.Handle("GET /api/rooms/{roomId}", optionalAuth(http.HandlerFunc(deps.RoomHandler.GetRoom)))

	mux.Handle("/api/", deps.RESTLimiter.Middleware(apiMux))

	mux.Handle("GET /ws", deps.WSHandler)
}
