package server

import (
	"log/slog"
	"net/http"

	"ecommerce-dashboard/internal/config"
	"ecommerce-dashboard/internal/handlers"
	"ecommerce-dashboard/internal/services"
)

type Server struct {
	analytics   *services.Analytics
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

// NewServer wires the routes. A nil metrics handler leaves /metrics
// unregistered.
func NewServer(analytics *services.Analytics, data config.DataConfig, logger *slog.Logger, templateHandlers *TemplateHandlers, metrics http.Handler) *Server {
	s := &Server{
		analytics:   analytics,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(analytics, data, logger),
		sseHandlers: handlers.NewSSEHandlers(analytics, logger),
	}
	s.setupRoutes(templateHandlers, metrics)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers, metrics http.Handler) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}

	// REST API endpoints
	s.mux.HandleFunc("GET /api/report", s.apiHandlers.HandleReport)
	s.mux.HandleFunc("GET /api/options", s.apiHandlers.HandleOptions)
	s.mux.HandleFunc("GET /api/tables/{name}", s.apiHandlers.HandleTable)
	s.mux.HandleFunc("GET /api/sample.csv", s.apiHandlers.HandleSample)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/report", s.sseHandlers.HandleReport)
}

// Mux exposes the route table so middleware can label requests by pattern.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
