package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Ingestion: body size is capped before the handler reads it
	mux.HandleFunc("/api/ingest", s.withBodyLimit(s.app.IngestHandler.IngestHandler))

	// Analysis
	mux.HandleFunc("/api/qna", s.app.QnAHandler.QnAHandler)

	// Stored data
	mux.HandleFunc("/api/raw", s.app.LogsHandler.RawLogsHandler)
	mux.HandleFunc("/api/issues", s.app.IssuesHandler.ListIssuesHandler)

	// Run lifecycle
	mux.HandleFunc("/api/control/clear", s.app.ControlHandler.ClearHandler)

	// Operations
	mux.HandleFunc("/api/metrics", s.app.MetricsHandler.MetricsHandler)
	mux.HandleFunc("/api/failed", s.app.FailedHandler.ListFailedHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// withBodyLimit caps the request body at the configured ingestion limit
func (s *Server) withBodyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limit := s.app.Config.Ingest.MaxBodyBytes; limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next(w, r)
	}
}
