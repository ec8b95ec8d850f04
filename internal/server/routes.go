package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/marketsync/internal/common"
	"github.com/ternarybob/marketsync/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - live progress stream
	mux.HandleFunc("/ws/progress", s.wsHandler.HandleProgress)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsCollection)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{id} and subpaths

	// API routes - Live progress polling
	mux.HandleFunc("/api/progress/", s.handleProgressRoutes)

	// API routes - System
	mux.HandleFunc("/api/health", s.healthHandler)
	mux.HandleFunc("/api/version", s.versionHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

// handleJobsCollection routes /api/jobs (list and create)
func (s *Server) handleJobsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.jobHandler.ListJobsHandler(w, r)
	case http.MethodPost:
		s.jobHandler.StartJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes routes /api/jobs/{id} and /api/jobs/{id}/cancel
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	suffix := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if suffix == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	// POST /api/jobs/{id}/cancel
	if r.Method == http.MethodPost && strings.HasSuffix(suffix, "/cancel") {
		taskID := strings.TrimSuffix(suffix, "/cancel")
		s.jobHandler.CancelJobHandler(w, r, taskID)
		return
	}

	// GET /api/jobs/{id}
	if r.Method == http.MethodGet && !strings.Contains(suffix, "/") {
		s.jobHandler.GetJobHandler(w, r, suffix)
		return
	}

	http.Error(w, "Not found", http.StatusNotFound)
}

// handleProgressRoutes routes /api/progress/{kind}
func (s *Server) handleProgressRoutes(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodGet) {
		return
	}
	kind := strings.TrimPrefix(r.URL.Path, "/api/progress/")
	if kind == "" || strings.Contains(kind, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.progressHandler.GetSnapshotHandler(w, r, kind)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
	})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	handlers.WriteError(w, http.StatusNotFound, "not found")
}
