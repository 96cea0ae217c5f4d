package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/protocol"
	"github.com/nerrad567/gray-logic-locales/internal/scheduler"
)

// Relay defaults.
const (
	defaultQueueSize = 256

	// commandTimeout bounds one MQTT-initiated controller exchange.
	commandTimeout = 10 * time.Second

	// historyTimeout bounds one history insert.
	historyTimeout = 5 * time.Second

	// commandQoS is the subscription QoS for locale commands.
	commandQoS = 1
)

// Publisher is the MQTT surface the relay uses. *mqtt.Client implements it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Topics() mqtt.Topics
}

// Metrics records time-series points. *influxdb.Client implements it.
type Metrics interface {
	WriteLocaleStatus(name, status, source string, at time.Time)
	WriteRoundTrip(op string, elapsed time.Duration, failed bool)
	WriteSync(destination string, locales int, elapsed time.Duration, at time.Time)
}

// HistoryRecorder stores status changes. *locale.SQLiteHistory implements it.
type HistoryRecorder interface {
	Record(ctx context.Context, change locale.Change) error
}

// Broadcaster pushes events to live UI clients. *api.Hub implements it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Commander runs set/get against the controller. *protocol.Session
// implements it.
type Commander interface {
	Set(ctx context.Context, name, desired string) (locale.MergeResult, error)
	Get(ctx context.Context, name string) (locale.MergeResult, error)
}

// Logger defines the logging interface used by the Relay.
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

// Deps holds the relay's collaborators. Only Store is required; every sink
// left nil is skipped.
type Deps struct {
	Store       *locale.Store
	Publisher   Publisher
	Metrics     Metrics
	History     HistoryRecorder
	Broadcaster Broadcaster

	// Commands enables the MQTT command subscription. It needs Publisher.
	Commands Commander

	Logger    Logger
	QueueSize int
}

// Lifecycle states.
const (
	stateNew int32 = iota
	stateRunning
	stateClosed
)

// event is one queued unit of fan-out work.
type event struct {
	change *locale.Change
	sync   *scheduler.Result
}

// Relay fans locale changes and poll results out to MQTT, InfluxDB, the
// history table and WebSocket clients, and serves locale commands received
// over MQTT.
//
// Store listeners and scheduler observers only enqueue; a single worker
// goroutine performs the (possibly slow) sink writes in arrival order. When
// the queue is full the event is dropped and counted.
type Relay struct {
	store       *locale.Store
	publisher   Publisher
	metrics     Metrics
	history     HistoryRecorder
	broadcaster Broadcaster
	commands    Commander
	logger      Logger

	queue chan event
	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dropped   atomic.Uint64
	processed atomic.Uint64

	newID func() string
}

var (
	_ scheduler.Observer = (*Relay)(nil)
	_ protocol.Observer  = (*Relay)(nil)
)

// New creates a relay and registers it as a store change listener. Events
// are ignored until Start.
func New(deps Deps) (*Relay, error) {
	if deps.Store == nil {
		return nil, ErrNoStore
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = defaultQueueSize
	}

	r := &Relay{
		store:       deps.Store,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		history:     deps.History,
		broadcaster: deps.Broadcaster,
		commands:    deps.Commands,
		logger:      deps.Logger,
		queue:       make(chan event, deps.QueueSize),
		newID:       uuid.NewString,
	}
	deps.Store.OnChange(r.onChange)
	return r, nil
}

// Start launches the worker, publishes the current table as retained state
// and subscribes to locale commands. The relay stops when ctx is cancelled
// or Close is called.
func (r *Relay) Start(ctx context.Context) error {
	if r.state.Load() != stateNew {
		return fmt.Errorf("relay already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.state.Store(stateRunning)

	r.wg.Add(1)
	go r.run()

	if r.publisher == nil {
		return nil
	}

	r.publishSnapshot()

	if r.commands != nil {
		topic := r.publisher.Topics().AllLocaleCommands()
		if err := r.publisher.Subscribe(topic, commandQoS, r.handleCommand); err != nil {
			return fmt.Errorf("subscribing to locale commands: %w", err)
		}
		r.logger.Info("listening for locale commands", "topic", topic)
	}
	return nil
}

// Close stops the worker after it drains the queue.
func (r *Relay) Close() {
	if !r.state.CompareAndSwap(stateRunning, stateClosed) {
		r.state.Store(stateClosed)
		return
	}
	r.cancel()
	r.wg.Wait()
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Relay) Dropped() uint64 {
	return r.dropped.Load()
}

// Processed returns how many events the worker has handled.
func (r *Relay) Processed() uint64 {
	return r.processed.Load()
}

// OnSync implements scheduler.Observer.
func (r *Relay) OnSync(res scheduler.Result) {
	r.enqueue(event{sync: &res})
}

// ObserveRoundTrip implements protocol.Observer.
func (r *Relay) ObserveRoundTrip(op protocol.Command, elapsed time.Duration, err error) {
	if r.metrics != nil {
		r.metrics.WriteRoundTrip(string(op), elapsed, err != nil)
	}
}

func (r *Relay) onChange(c locale.Change) {
	r.enqueue(event{change: &c})
}

func (r *Relay) enqueue(ev event) {
	if r.state.Load() != stateRunning {
		return
	}
	select {
	case r.queue <- ev:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("relay queue full, event dropped", "dropped_total", n)
	}
}

func (r *Relay) run() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			r.drain()
			return
		case ev := <-r.queue:
			r.process(ev)
		}
	}
}

func (r *Relay) drain() {
	for {
		select {
		case ev := <-r.queue:
			r.process(ev)
		default:
			return
		}
	}
}

func (r *Relay) process(ev event) {
	defer r.processed.Add(1)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("relay sink panic", "panic", p)
		}
	}()

	switch {
	case ev.change != nil:
		r.relayChange(*ev.change)
	case ev.sync != nil:
		r.relaySync(*ev.sync)
	}
}

func (r *Relay) relayChange(c locale.Change) {
	if r.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := r.history.Record(ctx, c); err != nil {
			r.logger.Warn("recording locale history failed", "locale", c.Name, "error", err)
		}
		cancel()
	}

	if r.metrics != nil {
		r.metrics.WriteLocaleStatus(c.Name, string(c.Status), string(c.Source), c.At)
	}

	if r.publisher != nil {
		if err := r.publisher.PublishJSON(r.publisher.Topics().LocaleState(c.Name), stateFor(c), true); err != nil {
			r.logger.Warn("publishing locale state failed", "locale", c.Name, "error", err)
		}
	}

	if r.broadcaster != nil {
		r.broadcaster.Broadcast(ChannelStatusChanged, c)
	}

	r.logger.Debug("locale change relayed",
		"locale", c.Name,
		"previous", string(c.Previous),
		"status", string(c.Status),
		"source", string(c.Source),
	)
}

func (r *Relay) relaySync(res scheduler.Result) {
	payload := SyncPayload{
		Generation:  res.Generation,
		Destination: res.Destination,
		Count:       len(res.Table),
		ElapsedMS:   float64(res.Elapsed.Microseconds()) / 1000,
		Timestamp:   res.At.UTC().Format(time.RFC3339),
		Locales:     res.Table,
	}

	if r.metrics != nil {
		r.metrics.WriteSync(res.Destination, len(res.Table), res.Elapsed, res.At)
	}

	if r.publisher != nil {
		if err := r.publisher.PublishJSON(r.publisher.Topics().SyncEvent(), payload, false); err != nil {
			r.logger.Warn("publishing sync event failed", "error", err)
		}
	}

	if r.broadcaster != nil {
		r.broadcaster.Broadcast(ChannelSyncCompleted, payload)
	}
}

// publishSnapshot publishes every cached locale as retained state so new
// subscribers see the table before the first change.
func (r *Relay) publishSnapshot() {
	now := time.Now().UTC()
	topics := r.publisher.Topics()

	for _, l := range r.store.Snapshot() {
		state := StatePayload{
			Locate:    l.Name,
			Status:    string(l.Status),
			Source:    string(locale.SourceLoad),
			Timestamp: now.Format(time.RFC3339),
		}
		if err := r.publisher.PublishJSON(topics.LocaleState(l.Name), state, true); err != nil {
			r.logger.Warn("publishing initial locale state failed", "locale", l.Name, "error", err)
			return
		}
	}
}

// handleCommand serves {prefix}/command/{name}. The reply goes to
// {prefix}/response/{request_id}; a request without an ID gets a fresh one.
func (r *Relay) handleCommand(topic string, payload []byte) error {
	if r.state.Load() != stateRunning {
		return ErrNotRunning
	}

	topics := r.publisher.Topics()
	name, ok := topics.LocaleFromCommand(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q", ErrBadCommand, topic)
	}

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrBadCommand, err)
	}
	if msg.RequestID == "" {
		msg.RequestID = r.newID()
	}

	res, err := r.execute(name, msg)

	resp := CommandResponse{
		RequestID: msg.RequestID,
		Command:   strings.ToLower(msg.Command),
		Locate:    name,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Status = string(res.Locale.Status)
		resp.Outcome = res.Outcome.String()
	}

	if perr := r.publisher.PublishJSON(topics.Response(msg.RequestID), resp, false); perr != nil {
		return fmt.Errorf("publishing command response: %w", perr)
	}
	return err
}

func (r *Relay) execute(name string, msg CommandMessage) (locale.MergeResult, error) {
	ctx, cancel := context.WithTimeout(r.ctx, commandTimeout)
	defer cancel()

	switch protocol.Command(strings.ToLower(msg.Command)) {
	case protocol.CommandSet:
		status, ok := locale.NormalizeStatus(msg.Value)
		if !ok {
			return locale.MergeResult{}, fmt.Errorf("%w: value must be on or off, got %q", ErrBadCommand, msg.Value)
		}
		return r.commands.Set(ctx, name, string(status))
	case protocol.CommandGet:
		return r.commands.Get(ctx, name)
	default:
		return locale.MergeResult{}, fmt.Errorf("%w: unsupported command %q", ErrBadCommand, msg.Command)
	}
}
