package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/protocol"
)

// SetStatusRequest is the body of PUT /locales/{name}/status.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// MergeResponse reports the outcome of a controller exchange for one locale.
type MergeResponse struct {
	locale.MergeResult

	// Persisted is false when the cache file could not be written. The
	// in-memory table still holds the merged value.
	Persisted bool `json:"persisted"`
}

// handleListLocales returns the cached table in its stored order.
func (s *Server) handleListLocales(w http.ResponseWriter, _ *http.Request) {
	table := s.store.Snapshot()
	if table == nil {
		table = locale.Table{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"locales": table,
		"count":   len(table),
	})
}

// handleGetLocale returns one cached row without contacting the controller.
func (s *Server) handleGetLocale(w http.ResponseWriter, r *http.Request) {
	name, ok := s.localeParam(w, r)
	if !ok {
		return
	}
	l, ok := s.store.Lookup(name)
	if !ok {
		writeNotFound(w, "locale not found")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// handleSetLocaleStatus sends set to the controller and merges the echo.
func (s *Server) handleSetLocaleStatus(w http.ResponseWriter, r *http.Request) {
	name, ok := s.localeParam(w, r)
	if !ok {
		return
	}

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	status, valid := locale.NormalizeStatus(req.Status)
	if !valid {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "status must be on or off")
		return
	}

	res, err := s.controller.Set(r.Context(), name, string(status))
	s.writeMergeResult(w, name, res, err)
}

// handleRefreshLocale sends get for one locale and merges the reply.
func (s *Server) handleRefreshLocale(w http.ResponseWriter, r *http.Request) {
	name, ok := s.localeParam(w, r)
	if !ok {
		return
	}

	res, err := s.controller.Get(r.Context(), name)
	s.writeMergeResult(w, name, res, err)
}

// handleRefreshAll sends get_all and merges the full snapshot.
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	table, err := s.controller.GetAll(r.Context())
	persisted := true
	if err != nil {
		if !errors.Is(err, protocol.ErrPersist) {
			s.logger.Warn("get_all failed", "error", err)
			writeControllerError(w, err)
			return
		}
		s.logger.Warn("locale cache not saved", "error", err)
		persisted = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"locales":   table,
		"count":     len(table),
		"persisted": persisted,
	})
}

func (s *Server) writeMergeResult(w http.ResponseWriter, name string, res locale.MergeResult, err error) {
	persisted := true
	if err != nil {
		if !errors.Is(err, protocol.ErrPersist) {
			s.logger.Warn("controller request failed", "locale", name, "error", err)
			writeControllerError(w, err)
			return
		}
		s.logger.Warn("locale cache not saved", "locale", name, "error", err)
		persisted = false
	}

	// A miss (outcome "miss") means the controller answered for a name the
	// table does not hold; it is reported, not treated as an error.
	writeJSON(w, http.StatusOK, MergeResponse{MergeResult: res, Persisted: persisted})
}

// localeParam reads {name} and checks that the locale is cached. It writes
// the error response and returns false otherwise. Any name the cache holds
// is accepted; request size is already bounded by the body limit.
func (s *Server) localeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeBadRequest(w, "invalid locale name")
		return "", false
	}
	if _, ok := s.store.Lookup(name); !ok {
		writeNotFound(w, "locale not found")
		return "", false
	}
	return name, true
}
