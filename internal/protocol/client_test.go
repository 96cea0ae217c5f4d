package protocol

import (
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/testutil/controllertest"
	"github.com/nerrad567/gray-logic-locales/internal/transport"
)

// fakeRoundTripper returns a canned body or error and records requests.
type fakeRoundTripper struct {
	mu       sync.Mutex
	body     string
	err      error
	requests []any
}

func (f *fakeRoundTripper) RoundTrip(_ context.Context, _ *net.UDPAddr, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, payload)
	return f.body, f.err
}

// recordingObserver captures round-trip observations.
type recordingObserver struct {
	mu  sync.Mutex
	ops []Command
}

func (r *recordingObserver) ObserveRoundTrip(op Command, _ time.Duration, _ error) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

// failingSaveStorage loads a table but refuses to save.
type failingSaveStorage struct{ table locale.Table }

func (f failingSaveStorage) Load(context.Context) (locale.Table, error) { return f.table.Clone(), nil }
func (f failingSaveStorage) Save(context.Context, locale.Table) error {
	return errors.New("read-only filesystem")
}

func newClient(t *testing.T, table locale.Table) (*Client, *locale.MemoryStorage) {
	t.Helper()

	storage := locale.NewMemoryStorage(table)
	store := locale.NewStore(storage)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return NewClient(store), storage
}

func newConn(t *testing.T) *transport.Conn {
	t.Helper()

	conn, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	conn.SetTimeout(2 * time.Second)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSetKitchenOn(t *testing.T) {
	devices := controllertest.NewDevices(locale.Table{{Name: "kitchen", Status: locale.StatusOff}})
	ctrl := controllertest.New(t, devices.Handle)
	client, storage := newClient(t, locale.Table{{Name: "kitchen", Status: locale.StatusOff}})
	conn := newConn(t)

	res, err := client.Set(context.Background(), conn, ctrl.Addr(), "kitchen", "On")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if res.Outcome != locale.OutcomeUpdated {
		t.Errorf("Outcome = %s, want updated", res.Outcome)
	}

	want := locale.Table{{Name: "kitchen", Status: locale.StatusOn}}
	if got := client.Store().Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("store = %+v, want %+v", got, want)
	}
	if got := storage.Table(); !reflect.DeepEqual(got, want) {
		t.Errorf("persisted = %+v, want %+v", got, want)
	}

	reqs := ctrl.Requests()
	if len(reqs) != 1 {
		t.Fatalf("controller requests = %d, want 1", len(reqs))
	}
	if reqs[0] != `{"locate":"kitchen","value":"on","command":"set"}` {
		t.Errorf("request = %s", reqs[0])
	}
}

func TestGetAllMergesOnlyReported(t *testing.T) {
	ctrl := controllertest.New(t, func(string) any {
		return map[string]any{"locale_list": []map[string]string{{"locate": "den", "status": "on"}}}
	})
	client, storage := newClient(t, locale.Table{
		{Name: "kitchen", Status: locale.StatusOn},
		{Name: "den", Status: locale.StatusOff},
	})
	conn := newConn(t)

	table, err := client.GetAll(context.Background(), conn, ctrl.Addr())
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}

	want := locale.Table{
		{Name: "kitchen", Status: locale.StatusOn},
		{Name: "den", Status: locale.StatusOn},
	}
	if !reflect.DeepEqual(table, want) {
		t.Errorf("GetAll() = %+v, want %+v", table, want)
	}
	if got := storage.Table(); !reflect.DeepEqual(got, want) {
		t.Errorf("persisted = %+v, want %+v", got, want)
	}
	if ctrl.Requests()[0] != `{"command":"get_all"}` {
		t.Errorf("request = %s", ctrl.Requests()[0])
	}
}

func TestGetMiss(t *testing.T) {
	devices := controllertest.NewDevices(locale.Table{{Name: "garage", Status: locale.StatusOn}})
	ctrl := controllertest.New(t, devices.Handle)
	client, storage := newClient(t, locale.Table{{Name: "kitchen", Status: locale.StatusOff}})
	conn := newConn(t)

	res, err := client.Get(context.Background(), conn, ctrl.Addr(), "garage")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if res.Found() {
		t.Errorf("Get(garage) found = %+v, want miss", res)
	}
	if !res.Locale.IsZero() {
		t.Errorf("Locale = %+v, want zero", res.Locale)
	}
	if client.Store().Len() != 1 {
		t.Errorf("store length = %d, want 1", client.Store().Len())
	}
	if storage.Saves() != 0 {
		t.Errorf("Saves() = %d, want 0 on a miss", storage.Saves())
	}
	if ctrl.Requests()[0] != `{"locate":"garage","command":"get"}` {
		t.Errorf("request = %s", ctrl.Requests()[0])
	}
}

func TestGetNormalisesStatus(t *testing.T) {
	tests := []struct {
		name        string
		reply       string
		wantStatus  locale.Status
		wantOutcome locale.Outcome
	}{
		{"upper case on", `{"locate":"den","status":"ON"}`, locale.StatusOn, locale.OutcomeUpdated},
		{"mixed case off", `{"locate":"den","status":"Off"}`, locale.StatusOff, locale.OutcomeUnchanged},
		{"bogus", `{"locate":"den","status":"bogus"}`, locale.StatusUnknown, locale.OutcomeInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newClient(t, locale.Table{{Name: "den", Status: locale.StatusOff}})
			rt := &fakeRoundTripper{body: tt.reply}

			res, err := client.Get(context.Background(), rt, nil, "den")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if res.Locale.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", res.Locale.Status, tt.wantStatus)
			}
			if res.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %s, want %s", res.Outcome, tt.wantOutcome)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		call func(*Client, transport.RoundTripper) error
	}{
		{
			name: "set not json",
			body: `on`,
			call: func(c *Client, rt transport.RoundTripper) error {
				_, err := c.Set(context.Background(), rt, nil, "den", "on")
				return err
			},
		},
		{
			name: "get missing status",
			body: `{"locate":"den"}`,
			call: func(c *Client, rt transport.RoundTripper) error {
				_, err := c.Get(context.Background(), rt, nil, "den")
				return err
			},
		},
		{
			name: "get_all missing locale_list",
			body: `{"locate":"den","status":"on"}`,
			call: func(c *Client, rt transport.RoundTripper) error {
				_, err := c.GetAll(context.Background(), rt, nil)
				return err
			},
		},
		{
			name: "get_all entry missing locate",
			body: `{"locale_list":[{"status":"on"}]}`,
			call: func(c *Client, rt transport.RoundTripper) error {
				_, err := c.GetAll(context.Background(), rt, nil)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initial := locale.Table{{Name: "den", Status: locale.StatusOff}}
			client, storage := newClient(t, initial)

			err := tt.call(client, &fakeRoundTripper{body: tt.body})
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("error = %v, want ErrDecode", err)
			}
			if got := client.Store().Snapshot(); !reflect.DeepEqual(got, initial) {
				t.Errorf("store changed on decode error: %+v", got)
			}
			if storage.Saves() != 0 {
				t.Errorf("Saves() = %d, want 0", storage.Saves())
			}
		})
	}
}

func TestTransportErrorsPropagate(t *testing.T) {
	client, _ := newClient(t, locale.Table{{Name: "den", Status: locale.StatusOff}})
	observer := &recordingObserver{}
	client.SetObserver(observer)

	rt := &fakeRoundTripper{err: transport.ErrTimeout}
	if _, err := client.Set(context.Background(), rt, nil, "den", "on"); !errors.Is(err, transport.ErrTimeout) {
		t.Errorf("Set() error = %v, want ErrTimeout", err)
	}

	rt.err = transport.ErrTransport
	if _, err := client.GetAll(context.Background(), rt, nil); !errors.Is(err, transport.ErrTransport) {
		t.Errorf("GetAll() error = %v, want ErrTransport", err)
	}

	if want := []Command{CommandSet, CommandGetAll}; !reflect.DeepEqual(observer.ops, want) {
		t.Errorf("observed = %v, want %v", observer.ops, want)
	}
}

func TestPersistError(t *testing.T) {
	store := locale.NewStore(failingSaveStorage{table: locale.Table{{Name: "den", Status: locale.StatusOff}}})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	client := NewClient(store)

	res, err := client.Set(context.Background(), &fakeRoundTripper{body: `{"locate":"den","status":"on"}`}, nil, "den", "on")
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("Set() error = %v, want ErrPersist", err)
	}
	if res.Locale.Status != locale.StatusOn {
		t.Errorf("merge result = %+v, want on despite persist failure", res)
	}
}

func TestSetEmptyName(t *testing.T) {
	client, _ := newClient(t, nil)
	rt := &fakeRoundTripper{}

	if _, err := client.Set(context.Background(), rt, nil, "", "on"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Set() error = %v, want ErrInvalidRequest", err)
	}
	if len(rt.requests) != 0 {
		t.Error("request sent for empty name")
	}
}

func TestConcurrentSetLastWriteWins(t *testing.T) {
	devices := controllertest.NewDevices(locale.Table{{Name: "hall", Status: locale.StatusOff}})
	ctrl := controllertest.New(t, devices.Handle)
	client, storage := newClient(t, locale.Table{
		{Name: "hall", Status: locale.StatusOff},
		{Name: "den", Status: locale.StatusOff},
	})
	conn := newConn(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			desired := "on"
			if i%2 == 1 {
				desired = "off"
			}
			if _, err := client.Set(context.Background(), conn, ctrl.Addr(), "hall", desired); err != nil {
				t.Errorf("Set() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(ctrl.Requests()); got != n {
		t.Errorf("controller requests = %d, want %d", got, n)
	}

	snapshot := client.Store().Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("store length = %d, want 2", len(snapshot))
	}
	if snapshot[0].Name != "hall" || !snapshot[0].Status.IsValid() {
		t.Errorf("hall = %+v, want on or off", snapshot[0])
	}
	if snapshot[1] != (locale.Locale{Name: "den", Status: locale.StatusOff}) {
		t.Errorf("den = %+v, want untouched", snapshot[1])
	}
	if got := storage.Table(); !reflect.DeepEqual(got, snapshot) {
		t.Errorf("persisted = %+v, want %+v", got, snapshot)
	}
}

func TestSetObserverWhileRunning(t *testing.T) {
	client, _ := newClient(t, locale.Table{{Name: "hall", Status: locale.StatusOff}})
	rt := &fakeRoundTripper{body: `{"locate":"hall","status":"on"}`}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if _, err := client.Get(context.Background(), rt, nil, "hall"); err != nil {
				t.Errorf("Get() error = %v", err)
				return
			}
		}
	}()

	obs := &recordingObserver{}
	for i := 0; i < 50; i++ {
		client.SetLogger(noopLogger{})
		client.SetObserver(obs)
	}
	<-done

	before := len(obs.ops)
	if _, err := client.Get(context.Background(), rt, nil, "hall"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(obs.ops) != before+1 {
		t.Errorf("observed = %d, want %d", len(obs.ops), before+1)
	}

	client.SetObserver(nil)
	if _, err := client.Get(context.Background(), rt, nil, "hall"); err != nil {
		t.Fatalf("Get() without observer error = %v", err)
	}
}
