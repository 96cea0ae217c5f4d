package locale

import (
	"context"
	"time"
)

// HistoryEntry is a single recorded status change.
type HistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// Name is the locale name.
	Name string `json:"locate"`

	// Previous is the status before the change.
	Previous Status `json:"previous"`

	// Status is the status after the change.
	Status Status `json:"status"`

	// Source identifies what caused the change (command, poll).
	Source Source `json:"source"`

	// CreatedAt is the time the change was recorded (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves locale status changes.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// Record stores a status change.
	Record(ctx context.Context, change Change) error

	// GetHistory returns recent changes for a locale, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - name: Locale name
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	GetHistory(ctx context.Context, name string, limit int) ([]HistoryEntry, error)

	// Prune deletes entries older than olderThan and returns the count.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
