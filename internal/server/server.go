// Package server provides the HTTP API for gap scans and repair jobs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mgrabner/listsync-go/internal/db"
	"github.com/mgrabner/listsync-go/internal/metrics"
	"github.com/mgrabner/listsync-go/internal/service"
)

// Server wires the sync services into an HTTP server with lifecycle
// management.
type Server struct {
	gaps      *service.GapService
	runner    *service.Runner
	collector *metrics.Collector
	logger    *slog.Logger
	http      *http.Server
}

// New creates the API server listening on the given port.
func New(port string, gaps *service.GapService, runner *service.Runner, collector *metrics.Collector, logger *slog.Logger) *Server {
	s := &Server{
		gaps:      gaps,
		runner:    runner,
		collector: collector,
		logger:    logger,
	}

	s.http = &http.Server{
		Addr:         ":" + port,
		Handler:      LoggingMiddleware(logger)(s.Handler()),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // watch connections stream for a while
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler builds the route table. Exposed separately so tests can drive it
// through httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/gaps", s.handleGaps)
	mux.HandleFunc("POST /api/repair", s.handleRepair)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/jobs/{id}/watch", s.handleWatchJob)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return mux
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("API server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests. Running repair jobs are not
// interrupted; they persist progress and resume on the next start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	report, err := s.gaps.Scan(r.Context(), limit)
	if err != nil {
		if errors.Is(err, db.ErrDataUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("gap scan failed", "error", err)
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	job, err := s.runner.StartRepair(r.Context())
	if err != nil {
		if errors.Is(err, db.ErrDataUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("repair start failed", "error", err)
		writeError(w, http.StatusInternalServerError, "repair start failed")
		return
	}

	if job == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "no repair needed"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":       job.ID,
		"itemsToSync": job.TotalItems,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.runner.Jobs().ListJobs(r.Context(), 0)
	if err != nil {
		s.logger.Error("job listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "job listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := s.runner.Jobs().GetProgress(r.Context(), id)
	if err != nil {
		s.logger.Error("job lookup failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
