package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/scheduler"
)

// fakeController answers every call with a fixed error or result.
type fakeController struct {
	res   locale.MergeResult
	table locale.Table
	err   error
}

func (f *fakeController) Set(context.Context, string, string) (locale.MergeResult, error) {
	return f.res, f.err
}

func (f *fakeController) Get(context.Context, string) (locale.MergeResult, error) {
	return f.res, f.err
}

func (f *fakeController) GetAll(context.Context) (locale.Table, error) {
	return f.table, f.err
}

// fakeSync mimics the scheduler's state machine without sockets.
type fakeSync struct {
	mu        sync.Mutex
	st        scheduler.Status
	err       error
	triggered int
}

func newFakeSync() *fakeSync {
	return &fakeSync{st: scheduler.Status{State: scheduler.StateIdle}}
}

func (f *fakeSync) Configure(intervalSpec, destination string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	interval, err := scheduler.ParseInterval(intervalSpec)
	if err != nil {
		return err
	}
	f.st.State = scheduler.StatePolling
	f.st.Interval = interval
	f.st.Destination = destination
	f.st.Generation++
	return nil
}

func (f *fakeSync) Stop() {
	f.mu.Lock()
	f.st.State = scheduler.StateIdle
	f.st.Interval = 0
	f.st.Destination = ""
	f.mu.Unlock()
}

func (f *fakeSync) TriggerRefresh() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.st.State != scheduler.StatePolling {
		return scheduler.ErrNotRunning
	}
	f.triggered++
	return nil
}

func (f *fakeSync) Status() scheduler.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

// fakeHistory serves canned history entries.
type fakeHistory struct {
	entries   []locale.HistoryEntry
	err       error
	lastName  string
	lastLimit int
}

func (f *fakeHistory) GetHistory(_ context.Context, name string, limit int) ([]locale.HistoryEntry, error) {
	f.lastName, f.lastLimit = name, limit
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

var errFakeDB = errors.New("database is locked")

func historyEntry(id int64, prev, next locale.Status) locale.HistoryEntry {
	return locale.HistoryEntry{
		ID:        id,
		Name:      "den",
		Previous:  prev,
		Status:    next,
		Source:    locale.SourcePoll,
		CreatedAt: time.Date(2026, 10, 1, 12, 0, int(id), 0, time.UTC),
	}
}
