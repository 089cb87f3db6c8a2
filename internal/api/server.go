// Package api provides the HTTP API server and handlers for the Inkwell server.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/http/response"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/validation"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	services  *Services
	router    *chi.Mux
	api       huma.API
	validator *validation.Validator
	limiter   *RateLimiter
	logger    *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, cfg config.ServerConfig, log *slog.Logger) *Server {
	if services == nil {
		services = &Services{}
	}

	s := &Server{
		services:  services,
		router:    chi.NewRouter(),
		validator: validation.New(),
		logger:    logger.OrDiscard(log),
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimitRPS, max(cfg.RateLimitBurst, 1))
	}

	s.setupMiddleware(cfg)

	humaConfig := huma.DefaultConfig("Inkwell API", "1.0.0")
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerApprovalRoutes()
	s.registerSearchRoutes()

	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "Route not found", s.logger)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.MethodNotAllowed(w, "Method not allowed", s.logger)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(cfg config.ServerConfig) {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

// requestLogger logs one line per request at debug, or warn for server errors.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
