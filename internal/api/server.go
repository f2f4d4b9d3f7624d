// Package api is the HTTP surface over the analysis service: start,
// polling, result retrieval, and on-demand diagram operations.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shikhar1verma/code-architecture-mapper/internal/llm"
	"github.com/shikhar1verma/code-architecture-mapper/internal/service"
	"github.com/shikhar1verma/code-architecture-mapper/internal/store"
)

// Server wires the service behind a chi router.
type Server struct {
	svc *service.Service
}

// NewServer creates the HTTP server wrapper.
func NewServer(svc *service.Service) *Server {
	return &Server{svc: svc}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/analysis/start", s.handleStart)
	r.Get("/analysis/{id}/status", s.handleStatus)
	r.Get("/analysis/{id}", s.handleResult)
	r.Post("/analysis/{id}/diagram/{mode}", s.handleGenerateDiagram)
	r.Post("/analysis/{id}/diagram/{mode}/correct", s.handleCorrectDiagram)

	return r
}

type startRequest struct {
	RepoURL      string `json:"repo_url"`
	ForceRefresh bool   `json:"force_refresh"`
}

type startResponse struct {
	AnalysisID string     `json:"analysis_id"`
	Status     string     `json:"status"`
	Cached     bool       `json:"cached"`
	CachedAt   *time.Time `json:"cached_at,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "repo_url is required")
		return
	}

	res, err := s.svc.Start(r.Context(), req.RepoURL, req.ForceRefresh)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := startResponse{AnalysisID: res.RunID, Status: res.Status, Cached: res.Cached}
	if res.Cached {
		resp.CachedAt = &res.CachedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	AnalysisID string `json:"analysis_id"`
	Status     string `json:"status"`
	Progress   string `json:"progress_status,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.svc.Status(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		AnalysisID: info.ID,
		Status:     info.Status,
		Progress:   info.Progress,
		Message:    info.Message,
	})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	results, err := s.svc.Result(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type diagramResponse struct {
	Mode    string `json:"mode"`
	Diagram string `json:"diagram"`
}

func (s *Server) handleGenerateDiagram(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mode := chi.URLParam(r, "mode")
	diagramText, err := s.svc.GenerateDiagram(r.Context(), id, mode)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diagramResponse{Mode: mode, Diagram: diagramText})
}

type correctRequest struct {
	BrokenCode   string `json:"broken_code"`
	ErrorMessage string `json:"error_message"`
}

func (s *Server) handleCorrectDiagram(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mode := chi.URLParam(r, "mode")

	var req correctRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BrokenCode == "" {
		writeError(w, http.StatusBadRequest, "broken_code is required")
		return
	}

	corrected, err := s.svc.CorrectDiagram(r.Context(), id, mode, req.BrokenCode, req.ErrorMessage)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diagramResponse{Mode: mode, Diagram: corrected})
}

// writeServiceError maps service errors to HTTP codes. Quota exhaustion
// gets its own status so the frontend can surface a specific message.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "analysis not found")
	case errors.Is(err, service.ErrNotReady):
		writeError(w, http.StatusTooEarly, err.Error())
	case errors.Is(err, service.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, llm.ErrQuotaExhausted):
		writeError(w, http.StatusTooManyRequests, "quota_exhausted")
	default:
		log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("encoding response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
