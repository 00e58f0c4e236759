package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mgrabner/listsync-go/internal/service"
)

// watchInterval is how often job snapshots are pushed to a watcher.
const watchInterval = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWatchJob upgrades to a websocket and streams job snapshots once a
// second until the job reaches a terminal state or the client hangs up.
// The final snapshot is always sent before the connection closes.
func (s *Server) handleWatchJob(w http.ResponseWriter, r *http.Request) {
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

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Warn("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	s.logger.Debug("watch started", "job_id", id)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(snap); err != nil {
			s.logger.Debug("watch client gone", "job_id", id, "error", err)
			return
		}
		if snap.Status == service.JobStatusCompleted || snap.Status == service.JobStatusFailed {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(snap.Status)))
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		snap, err = s.runner.Jobs().GetProgress(r.Context(), id)
		if err != nil || snap == nil {
			s.logger.Warn("watch lost job", "job_id", id, "error", err)
			return
		}
	}
}
