package locale

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteHistory implements HistoryRepository using SQLite.
//
// Rows live in the locale_history table created by the embedded migrations.
type SQLiteHistory struct {
	db *sql.DB
}

// Ensure SQLiteHistory implements HistoryRepository.
var _ HistoryRepository = (*SQLiteHistory)(nil)

// NewSQLiteHistory creates a new SQLite history repository.
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// Record inserts a history row for change.
//
// The row's created_at is taken from change.At when set, otherwise the
// database default (now) applies.
func (r *SQLiteHistory) Record(ctx context.Context, change Change) error {
	if change.Name == "" {
		return ErrInvalidName
	}
	source := change.Source
	if source == "" {
		source = SourcePoll
	}

	var err error
	if change.At.IsZero() {
		_, err = r.db.ExecContext(ctx,
			"INSERT INTO locale_history (locate, previous, status, source) VALUES (?, ?, ?, ?)",
			change.Name,
			string(change.Previous),
			string(change.Status),
			string(source),
		)
	} else {
		_, err = r.db.ExecContext(ctx,
			"INSERT INTO locale_history (locate, previous, status, source, created_at) VALUES (?, ?, ?, ?, ?)",
			change.Name,
			string(change.Previous),
			string(change.Status),
			string(source),
			change.At.UTC().Format(time.RFC3339),
		)
	}
	if err != nil {
		return fmt.Errorf("inserting locale history: %w", err)
	}
	return nil
}

// GetHistory returns recent history entries for a locale, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - name: Locale name
//   - limit: Maximum entries to return (default 50, max 200)
func (r *SQLiteHistory) GetHistory(ctx context.Context, name string, limit int) ([]HistoryEntry, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, locate, previous, status, source, created_at
		 FROM locale_history
		 WHERE locate = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		name,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying locale history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry     HistoryEntry
			previous  string
			status    string
			source    string
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.Name, &previous, &status, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning locale history: %w", err)
		}
		entry.Previous = Status(previous)
		entry.Status = Status(status)
		entry.Source = Source(source)

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating locale history: %w", err)
	}
	return entries, nil
}

// Prune deletes history entries older than the given duration.
func (r *SQLiteHistory) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM locale_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting locale history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return timestamp, nil
}
