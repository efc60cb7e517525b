package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/interview-engine/internal/config"
	"github.com/terra-clan/interview-engine/internal/health"
	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/metrics"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/policy"
	"github.com/terra-clan/interview-engine/internal/router"
	"github.com/terra-clan/interview-engine/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	sessions       *router.Router
	manager        interview.Manager
	table          *policy.Table
	checks         *health.Registry
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	sessions *router.Router,
	manager interview.Manager,
	table *policy.Table,
	checks *health.Registry,
	repo storage.Repository,
	bootstrapKey string,
) *Server {
	s := &Server{
		config:         cfg,
		sessions:       sessions,
		manager:        manager,
		table:          table,
		checks:         checks,
		authMiddleware: NewAuthMiddleware(repo, bootstrapKey),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public endpoints
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		// The stream outlives any request timeout
		r.With(s.authMiddleware.RequirePermission(models.PermSessionsRead)).Get("/sessions/{id}/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			// Turns wait on generation, so the timeout tracks the server write timeout
			timeout := s.config.WriteTimeout
			if timeout <= 0 {
				timeout = 90 * time.Second
			}
			r.Use(middleware.Timeout(timeout))

			r.Route("/sessions", func(r chi.Router) {
				r.With(s.authMiddleware.RequirePermission(models.PermSessionsRead)).Get("/", s.handleListSessions)
				r.With(s.authMiddleware.RequirePermission(models.PermSessionsWrite)).Post("/", s.handleCreateSession)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.authMiddleware.RequirePermission(models.PermSessionsRead)).Get("/", s.handleGetSession)
					r.With(s.authMiddleware.RequirePermission(models.PermSessionsRead)).Get("/messages", s.handleListMessages)
					r.With(s.authMiddleware.RequirePermission(models.PermSessionsWrite)).Post("/messages", s.handleSubmitMessage)
					r.With(s.authMiddleware.RequirePermission(models.PermSessionsWrite)).Post("/advance", s.handleAdvanceStage)
					r.With(s.authMiddleware.RequirePermission(models.PermSessionsWrite)).Post("/end", s.handleEndSession)
					r.With(s.authMiddleware.RequirePermission(models.PermSessionsWrite)).Post("/cancel", s.handleCancelSession)
					r.With(s.authMiddleware.RequirePermission(models.PermReportsRead)).Get("/report", s.handleGetReport)
					r.With(s.authMiddleware.RequirePermission(models.PermReportsWrite)).Post("/report/regenerate", s.handleRegenerateReport)
				})
			})

			r.Route("/positions", func(r chi.Router) {
				r.With(s.authMiddleware.RequirePermission(models.PermPositionsRead)).Get("/", s.handleListPositions)
				r.With(s.authMiddleware.RequirePermission(models.PermPositionsRead)).Get("/{name}", s.handleGetPosition)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
