package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-locales/internal/locale"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// handleGetLocaleHistory returns recorded status changes for a locale,
// newest first.
func (s *Server) handleGetLocaleHistory(w http.ResponseWriter, r *http.Request) {
	name, ok := s.localeParam(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.history == nil {
		writeUnavailable(w, "locale history unavailable")
		return
	}

	entries, err := s.history.GetHistory(r.Context(), name, limit)
	if err != nil {
		s.logger.Error("loading locale history failed", "locale", name, "error", err)
		writeInternalError(w, "failed to load locale history")
		return
	}

	if entries == nil {
		entries = []locale.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"locate":  name,
		"history": entries,
		"count":   len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}
