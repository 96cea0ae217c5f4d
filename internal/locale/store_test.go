package locale

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

// failingStorage returns configured errors from Load and Save.
type failingStorage struct {
	loadErr error
	saveErr error
}

func (f *failingStorage) Load(_ context.Context) (Table, error) { return nil, f.loadErr }
func (f *failingStorage) Save(_ context.Context, _ Table) error { return f.saveErr }

// recordingLogger captures warn messages.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

func newLoadedStore(t *testing.T, table Table) (*Store, *MemoryStorage) {
	t.Helper()

	storage := NewMemoryStorage(table)
	store := NewStore(storage)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return store, storage
}

func TestStoreLoad(t *testing.T) {
	logger := &recordingLogger{}
	storage := NewMemoryStorage(Table{
		{"kitchen", "OFF"},
		{"den", "on"},
		{"kitchen", "on"},
		{"attic", "dim"},
	})
	store := NewStore(storage)
	store.SetLogger(logger)

	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Table{{"kitchen", StatusOff}, {"den", StatusOn}, {"attic", StatusUnknown}}
	if got := store.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
	if logger.count() != 2 {
		t.Errorf("warn count = %d, want 2 (duplicate + invalid)", logger.count())
	}

	if err := store.Load(context.Background()); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("second Load() error = %v, want ErrAlreadyLoaded", err)
	}
}

func TestStoreLoadErrors(t *testing.T) {
	store := NewStore(&failingStorage{loadErr: ErrCacheMissing})
	if err := store.Load(context.Background()); !errors.Is(err, ErrCacheMissing) {
		t.Errorf("Load() error = %v, want ErrCacheMissing", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}

	if err := NewStore(nil).Load(context.Background()); !errors.Is(err, ErrNoStorage) {
		t.Errorf("Load() with nil storage error = %v, want ErrNoStorage", err)
	}
}

func TestStoreMergeAndPersist(t *testing.T) {
	store, storage := newLoadedStore(t, Table{{"kitchen", StatusOff}, {"den", StatusOff}})
	ctx := context.Background()

	res := store.Merge(Locale{"kitchen", "On"}, SourceCommand)
	if res.Outcome != OutcomeUpdated {
		t.Fatalf("Outcome = %s, want updated", res.Outcome)
	}
	if err := store.Persist(ctx); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	want := Table{{"kitchen", StatusOn}, {"den", StatusOff}}
	if got := storage.Table(); !reflect.DeepEqual(got, want) {
		t.Errorf("persisted = %+v, want %+v", got, want)
	}
	if l, ok := store.Lookup("kitchen"); !ok || l.Status != StatusOn {
		t.Errorf("Lookup(kitchen) = (%+v, %v), want on", l, ok)
	}
	if _, ok := store.Lookup("garage"); ok {
		t.Error("Lookup(garage) found, want miss")
	}
}

func TestStoreMergeMissIsPure(t *testing.T) {
	initial := Table{{"kitchen", StatusOff}}
	store, storage := newLoadedStore(t, initial)

	var changes int
	store.OnChange(func(Change) { changes++ })

	res := store.Merge(Locale{"garage", "on"}, SourceCommand)
	if res.Found() {
		t.Fatal("Merge(garage) found, want miss")
	}
	if !res.Locale.IsZero() {
		t.Errorf("Locale = %+v, want zero", res.Locale)
	}
	if got := store.Snapshot(); !reflect.DeepEqual(got, initial) {
		t.Errorf("Snapshot() = %+v, want %+v", got, initial)
	}
	if changes != 0 {
		t.Errorf("changes = %d, want 0", changes)
	}
	if storage.Saves() != 0 {
		t.Errorf("Saves() = %d, want 0", storage.Saves())
	}
}

func TestStoreMergeAll(t *testing.T) {
	store, _ := newLoadedStore(t, Table{{"kitchen", StatusOff}, {"den", StatusOff}})

	var got []Change
	store.OnChange(func(c Change) { got = append(got, c) })

	snapshot, results := store.MergeAll(Table{{"den", "ON"}, {"garage", "on"}}, SourcePoll)

	want := Table{{"kitchen", StatusOff}, {"den", StatusOn}}
	if !reflect.DeepEqual(snapshot, want) {
		t.Errorf("snapshot = %+v, want %+v", snapshot, want)
	}
	if len(results) != 2 {
		t.Fatalf("results length = %d, want 2", len(results))
	}
	if results[0].Outcome != OutcomeUpdated || results[1].Outcome != OutcomeMiss {
		t.Errorf("outcomes = [%s %s], want [updated miss]", results[0].Outcome, results[1].Outcome)
	}

	if len(got) != 1 {
		t.Fatalf("changes length = %d, want 1", len(got))
	}
	c := got[0]
	if c.Name != "den" || c.Previous != StatusOff || c.Status != StatusOn || c.Source != SourcePoll {
		t.Errorf("change = %+v", c)
	}
	if c.At.IsZero() {
		t.Error("change timestamp is zero")
	}
}

func TestStoreListenersFollowCommitOrder(t *testing.T) {
	store, _ := newLoadedStore(t, Table{{"kitchen", StatusOff}})

	var (
		mu    sync.Mutex
		order []Status
	)
	delivering := make(chan struct{})
	store.OnChange(func(c Change) {
		if c.Status == StatusOn {
			close(delivering)
			// Hold the first delivery open while the second merge runs.
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		order = append(order, c.Status)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		store.Merge(Locale{"kitchen", "on"}, SourceCommand)
	}()
	go func() {
		defer wg.Done()
		<-delivering
		store.Merge(Locale{"kitchen", "off"}, SourcePoll)
	}()
	wg.Wait()

	final, _ := store.Lookup("kitchen")
	if final.Status != StatusOff {
		t.Fatalf("final status = %s, want off", final.Status)
	}
	want := []Status{StatusOn, StatusOff}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("listener order = %v, want %v", order, want)
	}
}

func TestStoreListenerPanicRecovered(t *testing.T) {
	store, _ := newLoadedStore(t, Table{{"kitchen", StatusOff}})

	var called bool
	store.OnChange(func(Change) { panic("boom") })
	store.OnChange(func(Change) { called = true })

	store.Merge(Locale{"kitchen", "on"}, SourceCommand)
	if !called {
		t.Error("second listener not called after first panicked")
	}
}

func TestStorePersistErrors(t *testing.T) {
	ctx := context.Background()

	if err := NewStore(NewMemoryStorage(nil)).Persist(ctx); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Persist() before Load error = %v, want ErrNotLoaded", err)
	}

	saveErr := errors.New("disk full")
	fs := &failingStorage{saveErr: saveErr}
	store := NewStore(fs)
	store.loaded = true
	if err := store.Persist(ctx); !errors.Is(err, saveErr) {
		t.Errorf("Persist() error = %v, want %v", err, saveErr)
	}
}

func TestStoreConcurrentMerge(t *testing.T) {
	const n = 50

	table := make(Table, n)
	for i := range table {
		table[i] = Locale{Name: fmt.Sprintf("room-%d", i), Status: StatusOff}
	}
	store, storage := newLoadedStore(t, table)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Merge(Locale{Name: fmt.Sprintf("room-%d", i), Status: "ON"}, SourceCommand)
			if err := store.Persist(ctx); err != nil {
				t.Errorf("Persist() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i, l := range storage.Table() {
		if l.Status != StatusOn {
			t.Errorf("persisted[%d] = %+v, want on", i, l)
		}
	}
	if got := store.Len(); got != n {
		t.Errorf("Len() = %d, want %d", got, n)
	}
}
