package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/delacruz/cliflow-go/internal/api/handlers"
	apiMiddleware "github.com/delacruz/cliflow-go/internal/api/middleware"
	"github.com/delacruz/cliflow-go/internal/api/websocket"
	"github.com/delacruz/cliflow-go/internal/config"
	"github.com/delacruz/cliflow-go/internal/events"
	"github.com/delacruz/cliflow-go/internal/orchestrator"
	"github.com/delacruz/cliflow-go/internal/store"
)

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	config         *config.Config
	processHandler *handlers.ProcessHandler
	adminHandler   *handlers.AdminHandler
	wsHub          *websocket.Hub
	wsHandler      *websocket.Handler
	publisher      *events.RedisPubSub
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, st store.Store, publisher *events.RedisPubSub) *Server {
	wsHub := websocket.NewHub(publisher)

	s := &Server{
		router:         chi.NewRouter(),
		config:         cfg,
		processHandler: handlers.NewProcessHandler(orch),
		adminHandler:   handlers.NewAdminHandler(orch, st),
		wsHub:          wsHub,
		wsHandler:      websocket.NewHandler(wsHub),
		publisher:      publisher,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(middleware.Logger)

	// Recoverer
	s.router.Use(middleware.Recoverer)

	// Heartbeat endpoint for load balancers
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Content type for API routes
		r.Use(middleware.AllowContentType("application/json"))

		// Rate limiting for API routes
		if s.config.Server.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Server.RateLimitRPS))
		}

		if s.config.Auth.Enabled {
			apiKeys := make(map[string]bool, len(s.config.Auth.APIKeys))
			for _, k := range s.config.Auth.APIKeys {
				apiKeys[k] = true
			}
			r.Use(apiMiddleware.Auth(&apiMiddleware.AuthConfig{
				Enabled:   s.config.Auth.Enabled,
				JWTSecret: s.config.Auth.JWTSecret,
				APIKeys:   apiKeys,
			}))
		}

		// Process routes
		r.Route("/processes", func(r chi.Router) {
			r.Post("/", s.processHandler.Start)
			r.Get("/{processID}", s.processHandler.Get)
			r.Get("/{processID}/tasks", s.processHandler.Tasks)
			r.Post("/{processID}/stop", s.processHandler.Stop)
		})
	})

	// Admin routes
	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Get("/health", s.adminHandler.HealthCheck)
		r.Get("/processes", s.adminHandler.ListProcesses)
	})

	// WebSocket endpoint
	s.router.Get("/ws", s.wsHandler.ServeWS)

	// Metrics endpoint
	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start starts the WebSocket hub
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Publisher returns the event publisher
func (s *Server) Publisher() *events.RedisPubSub {
	return s.publisher
}
