package locale

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ChangeListener receives status changes while the store write lock is
// held, so listeners see changes in commit order.
type ChangeListener func(Change)

// Store is the locale State Store.
//
// It owns the locale table and serialises every read and write through one
// RWMutex. The table is seeded once from Storage by Load and written back by
// Persist.
//
// All public methods are thread-safe.
type Store struct {
	storage Storage

	table  Table
	loaded bool
	mu     sync.RWMutex // Protects table and loaded

	// persistMu orders Save calls so the last save always carries the
	// newest snapshot.
	persistMu sync.Mutex

	listeners   []ChangeListener
	listenersMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
	now      func() time.Time
}

// NewStore creates an empty store backed by storage.
// Call Load before use.
func NewStore(storage Storage) *Store {
	return &Store{
		storage: storage,
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the store. It is safe to call while
// merges are in flight.
func (s *Store) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Store) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// OnChange registers a listener for status changes.
//
// Listeners run synchronously on the goroutine that performed the merge,
// inside the store write lock, so their calls follow commit order. They
// must not block and must not call back into the Store.
func (s *Store) OnChange(fn ChangeListener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

// Load seeds the store from its storage collaborator.
//
// Load may only succeed once. Rows with a name already seen are dropped and
// rows whose status is not on/off are seeded as StatusUnknown; both are
// logged.
//
// Returns:
//   - error: ErrAlreadyLoaded on a second call, or the storage error
func (s *Store) Load(ctx context.Context) error {
	if s.storage == nil {
		return ErrNoStorage
	}

	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return ErrAlreadyLoaded
	}

	raw, err := s.storage.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading locale cache: %w", err)
	}

	table := make(Table, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, l := range raw {
		if _, dup := seen[l.Name]; dup {
			s.getLogger().Warn("duplicate locale in cache dropped", "locale", l.Name)
			continue
		}
		seen[l.Name] = struct{}{}

		status, ok := NormalizeStatus(string(l.Status))
		if !ok {
			s.getLogger().Warn("locale cache holds invalid status",
				"locale", l.Name,
				"raw_status", string(l.Status),
			)
		}
		table = append(table, Locale{Name: l.Name, Status: status})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return ErrAlreadyLoaded
	}
	s.table = table
	s.loaded = true

	s.getLogger().Info("locale cache loaded", "count", len(table))
	return nil
}

// Merge reconciles one controller-reported locale into the table.
//
// See the package-level Merge for the algorithm. Invalid statuses are logged
// at warn level; a changed row is announced to listeners.
func (s *Store) Merge(incoming Locale, source Source) MergeResult {
	s.mu.Lock()
	res := Merge(s.table, incoming)
	if res.Changed() {
		s.emit([]Change{s.changeFor(res, source)})
	}
	s.mu.Unlock()

	s.report(res, source)
	return res
}

// MergeAll reconciles a full controller snapshot into the table.
//
// Every incoming locale is merged under a single lock acquisition, so no
// reader sees a partially applied snapshot. Names the store does not know
// are skipped.
//
// Returns:
//   - Table: the table after the merge (a copy)
//   - []MergeResult: one result per incoming locale, in order
func (s *Store) MergeAll(incoming Table, source Source) (Table, []MergeResult) {
	results := make([]MergeResult, len(incoming))

	var changes []Change

	s.mu.Lock()
	for i, l := range incoming {
		results[i] = Merge(s.table, l)
		if results[i].Changed() {
			changes = append(changes, s.changeFor(results[i], source))
		}
	}
	snapshot := s.table.Clone()
	s.emit(changes)
	s.mu.Unlock()

	for _, res := range results {
		s.report(res, source)
	}

	return snapshot, results
}

// Snapshot returns a copy of the table in order.
func (s *Store) Snapshot() Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Clone()
}

// Lookup returns the row named name.
func (s *Store) Lookup(name string) (Locale, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := s.table.Index(name); idx >= 0 {
		return s.table[idx], true
	}
	return Locale{}, false
}

// Len returns the number of locales.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}

// Persist writes the current table to the storage collaborator in full.
func (s *Store) Persist(ctx context.Context) error {
	if s.storage == nil {
		return ErrNoStorage
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	loaded := s.loaded
	snapshot := s.table.Clone()
	s.mu.RUnlock()

	if !loaded {
		return ErrNotLoaded
	}

	if err := s.storage.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("saving locale cache: %w", err)
	}
	return nil
}

// report logs data-quality conditions for a merge result.
func (s *Store) report(res MergeResult, source Source) {
	switch res.Outcome {
	case OutcomeInvalidStatus:
		s.getLogger().Warn("controller reported invalid locale status",
			"locale", res.Locale.Name,
			"raw_status", res.RawStatus,
			"source", string(source),
		)
	case OutcomeMiss:
		s.getLogger().Debug("controller reported unknown locale", "source", string(source))
	}
}

func (s *Store) changeFor(res MergeResult, source Source) Change {
	return Change{
		Name:     res.Locale.Name,
		Previous: res.Previous,
		Status:   res.Locale.Status,
		Source:   source,
		At:       s.now().UTC(),
	}
}

// emit delivers changes to listeners. Caller holds s.mu for writing.
// Panics in listeners are recovered.
func (s *Store) emit(changes []Change) {
	if len(changes) == 0 {
		return
	}

	s.listenersMu.RLock()
	listeners := make([]ChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		for _, c := range changes {
			func() {
				defer func() {
					if r := recover(); r != nil {
						s.getLogger().Error("locale change listener panic", "locale", c.Name, "panic", r)
					}
				}()
				fn(c)
			}()
		}
	}
}
