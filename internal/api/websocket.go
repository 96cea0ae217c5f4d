package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/relay"
)

// Frame types on the /ws event stream.
//
// Requests: subscribe, unsubscribe, ping, snapshot, locale.
// Replies: reply, pong, error. Pushed: event.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FrameSnapshot    = "snapshot"
	FrameLocale      = "locale"

	FrameReply = "reply"
	FramePong  = "pong"
	FrameError = "error"
	FrameEvent = "event"
)

// streamQueueSize is the per-subscriber outbound frame buffer.
const streamQueueSize = 256

// streamChannels are the relay channels a subscriber may ask for.
var streamChannels = map[string]struct{}{
	relay.ChannelStatusChanged: {},
	relay.ChannelSyncCompleted: {},
}

// Frame is one message on the event stream. ID is echoed from a request to
// its reply; Channel is set on events.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	At      string          `json:"at,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribeRequest is the payload of subscribe and unsubscribe frames.
// With Snapshot set, the subscribe reply carries the cached table so a
// client can render state before the first event.
type SubscribeRequest struct {
	Channels []string `json:"channels"`
	Snapshot bool     `json:"snapshot,omitempty"`
}

// LocaleRequest is the payload of a locale frame.
type LocaleRequest struct {
	Locate string `json:"locate"`
}

// localeReader is the read side of the locale store.
type localeReader interface {
	Snapshot() locale.Table
	Lookup(name string) (locale.Locale, bool)
}

func encodeFrame(typ, id, channel string, payload any) ([]byte, error) {
	f := Frame{
		Type:    typ,
		ID:      id,
		Channel: channel,
		At:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Payload = raw
	}
	return json.Marshal(f)
}

// Hub fans relay events out to WebSocket subscribers.
//
// Broadcast never blocks: a subscriber whose queue is full misses the frame
// and the miss is counted in Dropped.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}

	dropped atomic.Uint64
}

// NewHub creates a hub. Run must be called to tear subscribers down on
// shutdown.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.close()
		if s.conn != nil {
			s.conn.Close()
		}
	}
}

// Broadcast sends payload as an event on channel to every subscriber of
// that channel. It implements relay.Broadcaster.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeFrame(FrameEvent, "", channel, payload)
	if err != nil {
		h.logger.Error("encoding event frame", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		if s.wants(channel) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many event frames were discarded for full queues.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("event stream subscriber connected", "subscribers", n)
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()

	s.close()
	h.logger.Debug("event stream subscriber disconnected", "subscribers", n)
}

// subscriber is one /ws connection.
type subscriber struct {
	hub     *Hub
	conn    *websocket.Conn
	locales localeReader

	// mu guards channels, closed and sends on queue, so queue is never
	// written after close.
	mu       sync.Mutex
	channels map[string]struct{}
	queue    chan []byte
	closed   bool
}

func newSubscriber(hub *Hub, conn *websocket.Conn, locales localeReader, queueSize int) *subscriber {
	return &subscriber{
		hub:      hub,
		conn:     conn,
		locales:  locales,
		channels: make(map[string]struct{}),
		queue:    make(chan []byte, queueSize),
	}
}

// enqueue queues data without blocking. It returns false if the frame was
// dropped.
func (s *subscriber) enqueue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- data:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

func (s *subscriber) wants(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channel]
	return ok
}

func (s *subscriber) reply(typ, id string, payload any) {
	data, err := encodeFrame(typ, id, "", payload)
	if err != nil {
		s.hub.logger.Error("encoding reply frame", "type", typ, "error", err)
		return
	}
	s.enqueue(data)
}

func (s *subscriber) fail(id, message string) {
	s.reply(FrameError, id, map[string]string{"message": message})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware has already vetted the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades GET /ws to an event stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := newSubscriber(s.hub, conn, s.store, streamQueueSize)
	s.hub.add(sub)

	keepalive := time.Duration(s.wsCfg.PingInterval) * time.Second
	grace := time.Duration(s.wsCfg.PongTimeout) * time.Second
	go sub.writeLoop(keepalive, grace)
	go sub.readLoop(int64(s.wsCfg.MaxMessageSize), keepalive+grace)
}

// readLoop handles request frames until the peer goes away. Any inbound
// frame or pong extends the read deadline by idle.
func (s *subscriber) readLoop(limit int64, idle time.Duration) {
	defer func() {
		s.hub.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(limit)
	extend := func() error { return s.conn.SetReadDeadline(time.Now().Add(idle)) }
	//nolint:errcheck // a failed deadline surfaces as a read error
	extend()
	s.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("event stream read failed", "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces as a read error
		extend()
		s.handle(data)
	}
}

// writeLoop drains the queue to the socket and pings every keepalive.
func (s *subscriber) writeLoop(keepalive, grace time.Duration) {
	ticker := time.NewTicker(keepalive)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // a failed deadline surfaces as a write error
		s.conn.SetWriteDeadline(time.Now().Add(grace))
		return s.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-s.queue:
			if !ok {
				//nolint:errcheck // peer may already be gone
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *subscriber) handle(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.fail("", "frame is not valid JSON")
		return
	}

	switch f.Type {
	case FrameSubscribe, FrameUnsubscribe:
		s.handleSubscription(f)
	case FramePing:
		s.reply(FramePong, f.ID, nil)
	case FrameSnapshot:
		s.reply(FrameReply, f.ID, s.tablePayload())
	case FrameLocale:
		s.handleLocale(f)
	default:
		s.fail(f.ID, "unknown frame type: "+f.Type)
	}
}

func (s *subscriber) handleSubscription(f Frame) {
	var req SubscribeRequest
	if len(f.Payload) == 0 || json.Unmarshal(f.Payload, &req) != nil || len(req.Channels) == 0 {
		s.fail(f.ID, f.Type+" needs a channels list")
		return
	}
	for _, ch := range req.Channels {
		if _, ok := streamChannels[ch]; !ok {
			s.fail(f.ID, "unknown channel: "+ch)
			return
		}
	}

	s.mu.Lock()
	for _, ch := range req.Channels {
		if f.Type == FrameSubscribe {
			s.channels[ch] = struct{}{}
		} else {
			delete(s.channels, ch)
		}
	}
	s.mu.Unlock()

	resp := map[string]any{f.Type + "d": req.Channels}
	if f.Type == FrameSubscribe && req.Snapshot {
		resp["snapshot"] = s.tablePayload()
	}
	s.reply(FrameReply, f.ID, resp)
}

func (s *subscriber) handleLocale(f Frame) {
	var req LocaleRequest
	if len(f.Payload) == 0 || json.Unmarshal(f.Payload, &req) != nil || req.Locate == "" {
		s.fail(f.ID, "locale needs a locate field")
		return
	}
	if s.locales == nil {
		s.fail(f.ID, "locale cache unavailable")
		return
	}
	l, ok := s.locales.Lookup(req.Locate)
	if !ok {
		s.fail(f.ID, "locale not found: "+req.Locate)
		return
	}
	s.reply(FrameReply, f.ID, l)
}

// tablePayload has the same shape as GET /locales.
func (s *subscriber) tablePayload() map[string]any {
	table := locale.Table{}
	if s.locales != nil {
		if t := s.locales.Snapshot(); t != nil {
			table = t
		}
	}
	return map[string]any{"locales": table, "count": len(table)}
}
