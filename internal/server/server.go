// Package server provides the HTTP server and routing for the conformer
// service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/database"
	"github.com/aristath/conformer/internal/events"
	"github.com/aristath/conformer/internal/modules/analysis"
	analysishandlers "github.com/aristath/conformer/internal/modules/analysis/handlers"
	"github.com/aristath/conformer/internal/reliability"
	"github.com/aristath/conformer/internal/scheduler"
)

// Config holds server configuration.
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	ResultsDB *database.DB
	CacheDB   *database.DB
	EventBus  *events.Bus
	Queue     *analysis.QueueRepository
	Analysis  *analysishandlers.Handler
	Backup    *reliability.BackupService // nil when backups are not configured
	Scheduler *scheduler.Scheduler
}

// Server is the conformer HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	analysis       *analysishandlers.Handler
	systemHandlers *SystemHandlers
	backupHandlers *BackupHandlers
	eventsStream   *EventsStreamHandler
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		port:     cfg.Port,
		analysis: cfg.Analysis,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.DataDir,
			cfg.ResultsDB,
			cfg.CacheDB,
			cfg.Queue,
			cfg.Scheduler,
		),
		backupHandlers: NewBackupHandlers(cfg.Backup, cfg.Log),
		eventsStream:   NewEventsStreamHandler(cfg.EventBus, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware.
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// SSE stream stays outside the timeout middleware
		r.Get("/events/stream", s.eventsStream.ServeHTTP)

		// Long analyses can exceed the default timeout; generous cap here
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(5 * time.Minute))

			s.analysis.RegisterRoutes(r)
			s.systemHandlers.RegisterRoutes(r)
			s.backupHandlers.RegisterRoutes(r)
		})
	})
}

// RegisterJob makes a scheduled job triggerable via POST /api/jobs/{name}.
func (s *Server) RegisterJob(job scheduler.Job) {
	s.systemHandlers.RegisterJob(job)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// Start starts the HTTP server. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
