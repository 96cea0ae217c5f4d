package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-locales/internal/scheduler"
)

// ConfigureSyncRequest is the body of PUT /sync.
type ConfigureSyncRequest struct {
	// Interval is a Go duration ("10s") or whole seconds ("10").
	Interval string `json:"interval"`

	// Destination is the controller "host:port".
	Destination string `json:"destination"`
}

// SyncStatusResponse is the body returned by every /sync endpoint.
type SyncStatusResponse struct {
	State       string `json:"state"`
	Interval    string `json:"interval,omitempty"`
	Destination string `json:"destination,omitempty"`
	Generation  uint64 `json:"generation"`
	Polls       uint64 `json:"polls"`
	Failures    uint64 `json:"failures"`
	LastError   string `json:"last_error,omitempty"`
	LastSync    string `json:"last_sync,omitempty"`
}

func syncStatusResponse(st scheduler.Status) SyncStatusResponse {
	resp := SyncStatusResponse{
		State:       string(st.State),
		Destination: st.Destination,
		Generation:  st.Generation,
		Polls:       st.Polls,
		Failures:    st.Failures,
		LastError:   st.LastError,
	}
	if st.Interval > 0 {
		resp.Interval = st.Interval.String()
	}
	if !st.LastSync.IsZero() {
		resp.LastSync = st.LastSync.UTC().Format(time.RFC3339)
	}
	return resp
}

// handleGetSync returns the scheduler state and counters.
func (s *Server) handleGetSync(w http.ResponseWriter, _ *http.Request) {
	if s.sync == nil {
		writeUnavailable(w, "sync scheduler unavailable")
		return
	}
	writeJSON(w, http.StatusOK, syncStatusResponse(s.sync.Status()))
}

// handleConfigureSync (re)starts periodic polling. A running worker is
// stopped and joined before the new one starts.
func (s *Server) handleConfigureSync(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeUnavailable(w, "sync scheduler unavailable")
		return
	}

	var req ConfigureSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Interval == "" || req.Destination == "" {
		writeBadRequest(w, "interval and destination are required")
		return
	}

	if err := s.sync.Configure(req.Interval, req.Destination); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrInvalidInterval), errors.Is(err, scheduler.ErrInvalidDestination):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, scheduler.ErrClosed):
			writeUnavailable(w, "sync scheduler is shut down")
		default:
			s.logger.Error("configuring sync failed", "error", err)
			writeInternalError(w, "failed to start sync")
		}
		return
	}

	writeJSON(w, http.StatusOK, syncStatusResponse(s.sync.Status()))
}

// handleStopSync stops periodic polling.
func (s *Server) handleStopSync(w http.ResponseWriter, _ *http.Request) {
	if s.sync == nil {
		writeUnavailable(w, "sync scheduler unavailable")
		return
	}
	s.sync.Stop()
	writeJSON(w, http.StatusOK, syncStatusResponse(s.sync.Status()))
}

// handleTriggerSync asks the running worker to poll immediately.
func (s *Server) handleTriggerSync(w http.ResponseWriter, _ *http.Request) {
	if s.sync == nil {
		writeUnavailable(w, "sync scheduler unavailable")
		return
	}
	if err := s.sync.TriggerRefresh(); err != nil {
		if errors.Is(err, scheduler.ErrNotRunning) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "sync is not running")
			return
		}
		writeInternalError(w, "failed to trigger sync")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}
