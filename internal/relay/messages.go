package relay

import (
	"time"

	"github.com/nerrad567/gray-logic-locales/internal/locale"
)

// Event channels broadcast to WebSocket clients.
const (
	ChannelStatusChanged = "locale.status_changed"
	ChannelSyncCompleted = "sync.completed"
)

// StatePayload is the retained body of {prefix}/state/{name}.
type StatePayload struct {
	Locate    string `json:"locate"`
	Status    string `json:"status"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// SyncPayload describes one completed poll.
type SyncPayload struct {
	Generation  uint64       `json:"generation"`
	Destination string       `json:"destination"`
	Count       int          `json:"count"`
	ElapsedMS   float64      `json:"elapsed_ms"`
	Timestamp   string       `json:"timestamp"`
	Locales     locale.Table `json:"locales"`
}

// CommandMessage is the body of {prefix}/command/{name}.
//
//	{"command":"set","value":"on","request_id":"..."}
//	{"command":"get"}
type CommandMessage struct {
	Command   string `json:"command"`
	Value     string `json:"value,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CommandResponse is published on {prefix}/response/{request_id}.
type CommandResponse struct {
	RequestID string `json:"request_id"`
	Command   string `json:"command"`
	Locate    string `json:"locate"`
	Status    string `json:"status,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

func stateFor(c locale.Change) StatePayload {
	return StatePayload{
		Locate:    c.Name,
		Status:    string(c.Status),
		Source:    string(c.Source),
		Timestamp: c.At.UTC().Format(time.RFC3339),
	}
}
