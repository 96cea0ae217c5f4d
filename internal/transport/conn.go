package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts for controller communication.
const (
	// DefaultTimeout bounds each receive when the caller's context carries
	// no earlier deadline.
	DefaultTimeout = 5 * time.Second

	// defaultWriteTimeout is the timeout for each datagram write.
	defaultWriteTimeout = 2 * time.Second

	// readBufferSize holds the largest possible UDP datagram.
	readBufferSize = 65535

	// drainWindow bounds the sweep for queued datagrams before a request.
	// A read deadline already in the past fails before the socket is read,
	// so the sweep needs a short window rather than time.Now().
	drainWindow = time.Millisecond
)

// Stats holds operational statistics for a connection.
type Stats struct {
	DatagramsTx      uint64
	DatagramsRx      uint64
	DatagramsDropped uint64 // Datagrams from a peer other than the current destination
	ErrorsTotal      uint64
	RoundTrips       uint64
	LastActivity     time.Time
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// RoundTripper performs one request/response exchange with the controller.
// Conn implements it; tests substitute fakes.
type RoundTripper interface {
	RoundTrip(ctx context.Context, dest *net.UDPAddr, payload any) (string, error)
}

// Ensure Conn implements RoundTripper.
var _ RoundTripper = (*Conn)(nil)

// Conn is a UDP socket speaking the two-datagram controller framing.
//
// The socket is unconnected so the destination can change between calls.
// Send associates the connection with its destination and Receive only
// accepts datagrams from that peer; anything else is dropped and counted.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - RoundTrip holds a per-connection lock for the whole exchange, so at
//     most one request is in flight. Send and Receive called directly take
//     only the write or read lock; callers using them concurrently on one
//     Conn will interleave datagrams.
type Conn struct {
	udp *net.UDPConn

	timeout atomic.Int64 // time.Duration

	// Current peer association
	peer   *net.UDPAddr
	peerMu sync.RWMutex

	rtMu    sync.Mutex // Held for a whole RoundTrip
	writeMu sync.Mutex // Keeps the two datagrams of one message adjacent
	readMu  sync.Mutex // Protects buf
	buf     []byte

	closed atomic.Bool

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	datagramsTx      atomic.Uint64
	datagramsRx      atomic.Uint64
	datagramsDropped atomic.Uint64
	errorsTotal      atomic.Uint64
	roundTrips       atomic.Uint64
	lastActivity     atomic.Int64 // Unix nanoseconds
}

// Listen opens a UDP socket bound to localAddr ("host:port"; port 0 picks
// an ephemeral port).
func Listen(localAddr string) (*Conn, error) {
	laddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving local address %q: %w", ErrTransport, localAddr, err)
	}

	udp, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("%w: binding %s: %w", ErrTransport, localAddr, err)
	}

	c := &Conn{
		udp: udp,
		buf: make([]byte, readBufferSize),
	}
	c.timeout.Store(int64(DefaultTimeout))
	c.lastActivity.Store(time.Now().UnixNano())
	return c, nil
}

// ResolveDestination parses a "host:port" controller address.
func ResolveDestination(address string) (*net.UDPAddr, error) {
	if address == "" {
		return nil, ErrNoDestination
	}
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolving destination %q: %w", address, err)
	}
	if addr.Port == 0 {
		return nil, fmt.Errorf("destination %q has no port", address)
	}
	return addr, nil
}

// SetLogger sets the logger for connection events.
func (c *Conn) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// SetTimeout sets the receive timeout. Non-positive values restore
// DefaultTimeout.
func (c *Conn) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	c.timeout.Store(int64(d))
}

// Timeout returns the receive timeout.
func (c *Conn) Timeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

// LocalAddr returns the bound local address.
func (c *Conn) LocalAddr() *net.UDPAddr {
	addr, _ := c.udp.LocalAddr().(*net.UDPAddr) //nolint:errcheck // Always *net.UDPAddr for a UDPConn
	return addr
}

// Peer returns the destination the connection is associated with, or nil.
func (c *Conn) Peer() *net.UDPAddr {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	return c.peer
}

// Send frames payload and writes the prefix and body datagrams to dest.
//
// Send re-associates the connection with dest before writing, so later
// receives only accept datagrams from dest.
func (c *Conn) Send(ctx context.Context, dest *net.UDPAddr, payload any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if dest == nil {
		return ErrNoDestination
	}

	prefix, body, err := Encode(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.peerMu.Lock()
	c.peer = dest
	c.peerMu.Unlock()

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.udp.SetWriteDeadline(deadline); err != nil {
		return c.fail("set write deadline", err)
	}

	for _, datagram := range [][]byte{prefix, body} {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: send cancelled: %w", ErrTransport, err)
		}
		if _, err := c.udp.WriteToUDP(datagram, dest); err != nil {
			return c.fail("write datagram", err)
		}
		c.datagramsTx.Add(1)
	}

	c.touch()
	c.logDebug("message sent", "peer", dest.String(), "bytes", len(body))
	return nil
}

// Receive reads one framed message from the associated peer.
//
// It blocks until both datagrams arrive, the receive timeout elapses, or ctx
// is done. The effective deadline is the earlier of the timeout and the
// context deadline.
//
// Returns:
//   - string: the JSON body as text
//   - error: ErrTimeout, ErrDecode, ErrTransport, or the context error
func (c *Conn) Receive(ctx context.Context) (string, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	deadline := time.Now().Add(c.Timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// Unblock a pending read as soon as ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = c.udp.SetReadDeadline(time.Now()) //nolint:errcheck // Best effort wake-up
	})
	defer stop()

	prefix, err := c.readDatagram(ctx, deadline)
	if err != nil {
		return "", err
	}
	n, err := DecodePrefix(prefix)
	if err != nil {
		c.errorsTotal.Add(1)
		return "", err
	}

	body, err := c.readDatagram(ctx, deadline)
	if err != nil {
		return "", err
	}
	text, err := DecodeBody(body, n)
	if err != nil {
		c.errorsTotal.Add(1)
		return "", err
	}
	return text, nil
}

// RoundTrip sends payload to dest and waits for the single response.
//
// The connection lock is held across both halves, so concurrent callers on
// one Conn are serialised and never see each other's datagrams. Datagrams
// already queued when the request is made (a reply that arrived after an
// earlier timeout) are discarded first, so a late answer is never taken
// for this request's.
func (c *Conn) RoundTrip(ctx context.Context, dest *net.UDPAddr, payload any) (string, error) {
	c.rtMu.Lock()
	defer c.rtMu.Unlock()

	if err := c.drain(); err != nil {
		return "", err
	}
	if err := c.Send(ctx, dest, payload); err != nil {
		return "", err
	}
	resp, err := c.Receive(ctx)
	if err != nil {
		return "", err
	}
	c.roundTrips.Add(1)
	return resp, nil
}

// Stats returns operational statistics.
func (c *Conn) Stats() Stats {
	return Stats{
		DatagramsTx:      c.datagramsTx.Load(),
		DatagramsRx:      c.datagramsRx.Load(),
		DatagramsDropped: c.datagramsDropped.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
		RoundTrips:       c.roundTrips.Load(),
		LastActivity:     time.Unix(0, c.lastActivity.Load()),
	}
}

// Close closes the socket. Pending reads return ErrClosed.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.udp.Close(); err != nil {
		return fmt.Errorf("%w: closing socket: %w", ErrTransport, err)
	}
	return nil
}

// readDatagram returns the next datagram from the associated peer.
// The returned slice aliases c.buf and is valid until the next read.
func (c *Conn) readDatagram(ctx context.Context, deadline time.Time) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, c.contextError(err)
		}
		if err := c.udp.SetReadDeadline(deadline); err != nil {
			return nil, c.fail("set read deadline", err)
		}

		n, from, err := c.udp.ReadFromUDP(c.buf)
		if err != nil {
			return nil, c.readError(ctx, err)
		}

		if !c.fromPeer(from) {
			c.datagramsDropped.Add(1)
			c.logDebug("dropping datagram from foreign peer", "from", from.String())
			continue
		}

		c.datagramsRx.Add(1)
		c.touch()
		return c.buf[:n], nil
	}
}

// drain discards every datagram already queued on the socket and counts
// them as dropped.
func (c *Conn) drain() error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.udp.SetReadDeadline(time.Now().Add(drainWindow)); err != nil {
		return c.fail("set read deadline", err)
	}
	for {
		_, from, err := c.udp.ReadFromUDP(c.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			if c.closed.Load() {
				return ErrClosed
			}
			return c.fail("drain socket", err)
		}
		c.datagramsDropped.Add(1)
		c.logDebug("discarding stale datagram", "from", from.String())
	}
}

// readError classifies a failed read.
func (c *Conn) readError(ctx context.Context, err error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return c.contextError(ctxErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w after %s", ErrTimeout, c.Timeout())
	}
	return c.fail("read datagram", err)
}

// contextError maps a context error: a passed deadline is a timeout,
// cancellation is reported as is.
func (c *Conn) contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// fromPeer reports whether addr is the associated peer. With no
// association every sender is accepted.
func (c *Conn) fromPeer(addr *net.UDPAddr) bool {
	c.peerMu.RLock()
	peer := c.peer
	c.peerMu.RUnlock()

	if peer == nil || addr == nil {
		return true
	}
	if peer.Port != addr.Port {
		return false
	}
	if peer.IP.IsUnspecified() {
		return true
	}
	return peer.IP.Equal(addr.IP)
}

func (c *Conn) fail(op string, err error) error {
	c.errorsTotal.Add(1)
	c.logError(op+" failed", err)
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Conn) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Conn) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
