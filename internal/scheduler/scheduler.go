package scheduler

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/transport"
)

// Scheduler defaults.
const (
	// MinInterval is the shortest accepted polling interval.
	MinInterval = 100 * time.Millisecond

	// defaultLocalAddress binds each worker connection to an ephemeral port.
	defaultLocalAddress = "0.0.0.0:0"
)

// State is the scheduler lifecycle state.
type State string

// Scheduler states.
const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
)

// Syncer performs one get_all exchange and merges the result.
// protocol.Client implements it.
type Syncer interface {
	GetAll(ctx context.Context, rt transport.RoundTripper, dest *net.UDPAddr) (locale.Table, error)
}

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result is one successful poll, delivered to observers.
type Result struct {
	Generation  uint64
	Destination string
	Table       locale.Table
	Elapsed     time.Duration
	At          time.Time
}

// Observer receives poll results on the scheduler's apply goroutine.
// OnSync must not block.
type Observer interface {
	OnSync(Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Result)

// OnSync implements Observer.
func (f ObserverFunc) OnSync(r Result) { f(r) }

// Options configures a Scheduler.
type Options struct {
	// LocalAddress is the bind address for each worker's connection.
	// Default: "0.0.0.0:0".
	LocalAddress string

	// Timeout bounds each poll's receive. Zero uses transport.DefaultTimeout.
	Timeout time.Duration
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State       State
	Interval    time.Duration
	Destination string
	Generation  uint64
	Polls       uint64
	Failures    uint64
	LastError   string
	LastSync    time.Time
}

// Scheduler polls the controller with get_all on a fixed interval.
//
// Each configuration runs one worker: a poll goroutine with its own
// connection, and an apply goroutine that hands results to observers. A new
// configuration stops and joins the running worker before starting its
// replacement, so at most one worker exists at any time.
//
// All public methods are thread-safe.
type Scheduler struct {
	syncer Syncer
	opts   Options

	logger   Logger
	loggerMu sync.RWMutex

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// lifecycleMu serialises Start, Stop and Close. It is held while a
	// worker is joined, so observers never take it.
	lifecycleMu sync.Mutex
	generation  uint64
	closed      bool

	w  *worker
	mu sync.RWMutex // Protects w

	observers   []Observer
	observersMu sync.RWMutex

	// Counters
	statsMu  sync.RWMutex
	polls    uint64
	failures uint64
	lastErr  string
	lastSync time.Time
}

// worker is one running poll/apply pair.
type worker struct {
	gen      uint64
	interval time.Duration
	dest     *net.UDPAddr
	conn     *transport.Conn

	ctx       context.Context
	cancel    context.CancelFunc
	refreshCh chan struct{}
	results   chan Result
	wg        sync.WaitGroup
}

// New creates an idle scheduler. Workers stop when ctx is cancelled.
func New(ctx context.Context, syncer Syncer, opts Options) *Scheduler {
	if opts.LocalAddress == "" {
		opts.LocalAddress = defaultLocalAddress
	}
	baseCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		syncer:     syncer,
		opts:       opts,
		logger:     noopLogger{},
		baseCtx:    baseCtx,
		baseCancel: cancel,
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Scheduler) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// AddObserver registers an observer for poll results.
func (s *Scheduler) AddObserver(o Observer) {
	s.observersMu.Lock()
	s.observers = append(s.observers, o)
	s.observersMu.Unlock()
}

// Configure parses user-supplied strings and (re)starts polling.
//
// intervalSpec is a Go duration ("5s", "1m30s") or a whole number of
// seconds ("5"). destination is "host:port".
func (s *Scheduler) Configure(intervalSpec, destination string) error {
	interval, err := ParseInterval(intervalSpec)
	if err != nil {
		return err
	}
	dest, err := transport.ResolveDestination(destination)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDestination, err)
	}
	return s.Start(interval, dest)
}

// Start stops any running worker, waits for it to exit, and starts a new
// one polling dest every interval.
func (s *Scheduler) Start(interval time.Duration, dest *net.UDPAddr) error {
	if interval < MinInterval {
		return fmt.Errorf("%w: %s is below %s", ErrInvalidInterval, interval, MinInterval)
	}
	if dest == nil {
		return fmt.Errorf("%w: no destination", ErrInvalidDestination)
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.baseCtx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	s.stopLocked()

	conn, err := transport.Listen(s.opts.LocalAddress)
	if err != nil {
		return fmt.Errorf("opening poll connection: %w", err)
	}
	conn.SetTimeout(s.opts.Timeout)

	s.generation++
	ctx, cancel := context.WithCancel(s.baseCtx)
	w := &worker{
		gen:       s.generation,
		interval:  interval,
		dest:      dest,
		conn:      conn,
		ctx:       ctx,
		cancel:    cancel,
		refreshCh: make(chan struct{}, 1),
		results:   make(chan Result, 1),
	}

	w.wg.Add(2)
	go s.pollLoop(w)
	go s.applyLoop(w)

	s.mu.Lock()
	s.w = w
	s.mu.Unlock()

	s.getLogger().Info("locale sync started",
		"generation", w.gen,
		"interval", interval,
		"destination", dest.String(),
		"local_address", conn.LocalAddr().String(),
	)
	return nil
}

// Stop cancels the running worker and waits for it to exit.
// It is a no-op when idle.
func (s *Scheduler) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	s.stopLocked()
}

// Close stops polling permanently.
func (s *Scheduler) Close() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.closed = true
	s.stopLocked()
	s.baseCancel()
}

// TriggerRefresh asks the running worker to poll now instead of waiting for
// the next tick. Requests made while a poll is pending are coalesced.
func (s *Scheduler) TriggerRefresh() error {
	s.mu.RLock()
	w := s.w
	s.mu.RUnlock()

	if w == nil || w.ctx.Err() != nil {
		return ErrNotRunning
	}
	select {
	case w.refreshCh <- struct{}{}:
	default:
	}
	return nil
}

// Status returns the scheduler state and counters.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	w := s.w
	s.mu.RUnlock()

	st := Status{State: StateIdle}
	if w != nil && w.ctx.Err() == nil {
		st.State = StatePolling
		st.Interval = w.interval
		st.Destination = w.dest.String()
		st.Generation = w.gen
	}

	s.statsMu.RLock()
	st.Polls = s.polls
	st.Failures = s.failures
	st.LastError = s.lastErr
	st.LastSync = s.lastSync
	s.statsMu.RUnlock()

	return st
}

// stopLocked cancels and joins the current worker. Caller holds
// s.lifecycleMu.
func (s *Scheduler) stopLocked() {
	s.mu.Lock()
	w := s.w
	s.w = nil
	s.mu.Unlock()

	if w == nil {
		return
	}

	w.cancel()
	w.wg.Wait()
	if err := w.conn.Close(); err != nil {
		s.getLogger().Warn("closing poll connection", "generation", w.gen, "error", err)
	}
	s.getLogger().Info("locale sync stopped", "generation", w.gen)
}

// pollLoop waits for the interval (or a refresh request), polls, and hands
// the result to the apply goroutine.
func (s *Scheduler) pollLoop(w *worker) {
	defer w.wg.Done()
	defer close(w.results)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.refreshCh:
			timer.Stop()
		case <-timer.C:
		}

		start := time.Now()
		table, err := s.syncer.GetAll(w.ctx, w.conn, w.dest)
		if w.ctx.Err() != nil {
			return
		}
		s.record(w, err)

		if err == nil {
			s.publish(w, Result{
				Generation:  w.gen,
				Destination: w.dest.String(),
				Table:       table,
				Elapsed:     time.Since(start),
				At:          time.Now().UTC(),
			})
		}

		timer.Reset(w.interval)
	}
}

// publish hands r to the apply goroutine, replacing any result it has not
// picked up yet. Only pollLoop sends on w.results.
func (s *Scheduler) publish(w *worker, r Result) {
	select {
	case w.results <- r:
		return
	default:
	}

	select {
	case <-w.results:
		s.getLogger().Debug("discarding stale poll result", "generation", w.gen)
	default:
	}
	w.results <- r
}

// applyLoop delivers results to observers until the poll goroutine exits.
func (s *Scheduler) applyLoop(w *worker) {
	defer w.wg.Done()

	for r := range w.results {
		if w.ctx.Err() != nil {
			continue
		}
		s.notify(r)
	}
}

func (s *Scheduler) notify(r Result) {
	s.observersMu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.observersMu.RUnlock()

	for _, o := range observers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					s.getLogger().Error("sync observer panic", "generation", r.Generation, "panic", p)
				}
			}()
			o.OnSync(r)
		}()
	}
}

func (s *Scheduler) record(w *worker, err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.polls++
	if err != nil {
		s.failures++
		s.lastErr = err.Error()
		s.getLogger().Warn("locale sync poll failed",
			"generation", w.gen,
			"destination", w.dest.String(),
			"error", err,
		)
		return
	}
	s.lastErr = ""
	s.lastSync = time.Now().UTC()
}

// ParseInterval parses a polling interval: a Go duration ("5s") or a whole
// number of seconds ("5").
func ParseInterval(spec string) (time.Duration, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidInterval)
	}

	var d time.Duration
	if secs, err := strconv.ParseUint(spec, 10, 32); err == nil {
		d = time.Duration(secs) * time.Second
	} else {
		d, err = time.ParseDuration(spec)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, spec)
		}
	}

	if d < MinInterval {
		return 0, fmt.Errorf("%w: %s is below %s", ErrInvalidInterval, d, MinInterval)
	}
	return d, nil
}
