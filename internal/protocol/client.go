package protocol

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/transport"
)

// Logger defines the logging interface used by the Client.
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

// Observer is notified after every controller round trip.
type Observer interface {
	ObserveRoundTrip(op Command, elapsed time.Duration, err error)
}

// Client runs the set, get and get_all operations against the controller
// and merges the answers into a locale store.
//
// The Client holds no connection. Each call takes the RoundTripper to use,
// so the foreground path and each background poller can bring their own.
type Client struct {
	store *locale.Store

	mu       sync.RWMutex // Protects logger and observer
	logger   Logger
	observer Observer
}

// NewClient creates a client that merges into store.
func NewClient(store *locale.Store) *Client {
	return &Client{store: store, logger: noopLogger{}}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// SetObserver sets the round-trip observer. Pass nil to remove it.
func (c *Client) SetObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// Store returns the store the client merges into.
func (c *Client) Store() *locale.Store {
	return c.store
}

// Set asks the controller to switch name to desired and merges the echoed
// locale into the store.
//
// The desired value is lower-cased but otherwise sent as given; the
// controller is the authority on what it accepts.
//
// Returns:
//   - locale.MergeResult: the merge of the controller's echo
//   - error: transport, decode or persistence failure
func (c *Client) Set(ctx context.Context, rt transport.RoundTripper, dest *net.UDPAddr, name, desired string) (locale.MergeResult, error) {
	if name == "" {
		return locale.MergeResult{}, fmt.Errorf("%w: empty locale name", ErrInvalidRequest)
	}
	return c.single(ctx, rt, dest, CommandSet, NewSetRequest(name, desired), locale.SourceCommand)
}

// Get asks the controller for one locale and merges the answer.
//
// The returned result's Locale.Status is the value stored after
// normalisation. A name the store does not hold yields a zero Locale with
// OutcomeMiss.
func (c *Client) Get(ctx context.Context, rt transport.RoundTripper, dest *net.UDPAddr, name string) (locale.MergeResult, error) {
	if name == "" {
		return locale.MergeResult{}, fmt.Errorf("%w: empty locale name", ErrInvalidRequest)
	}
	return c.single(ctx, rt, dest, CommandGet, NewGetRequest(name), locale.SourcePoll)
}

// GetAll asks the controller for every locale and merges each one the store
// already holds. The whole batch is applied under one store lock.
//
// Returns:
//   - locale.Table: the table after the merge
//   - error: transport, decode or persistence failure
func (c *Client) GetAll(ctx context.Context, rt transport.RoundTripper, dest *net.UDPAddr) (locale.Table, error) {
	body, err := c.roundTrip(ctx, rt, dest, CommandGetAll, NewGetAllRequest())
	if err != nil {
		return nil, err
	}

	incoming, err := DecodeLocaleList(body)
	if err != nil {
		c.getLogger().Warn("malformed get_all response", "error", err)
		return nil, fmt.Errorf("%s: %w", CommandGetAll, err)
	}

	table, results := c.store.MergeAll(incoming, locale.SourcePoll)

	var matched, updated int
	for _, r := range results {
		if r.Found() {
			matched++
		}
		if r.Changed() {
			updated++
		}
	}
	c.getLogger().Debug("get_all merged",
		"reported", len(incoming),
		"matched", matched,
		"updated", updated,
	)

	if matched > 0 {
		if err := c.store.Persist(ctx); err != nil {
			return table, fmt.Errorf("%s: %w: %w", CommandGetAll, ErrPersist, err)
		}
	}
	return table, nil
}

// single runs a set or get and merges the one-locale response.
func (c *Client) single(ctx context.Context, rt transport.RoundTripper, dest *net.UDPAddr, op Command, req any, source locale.Source) (locale.MergeResult, error) {
	body, err := c.roundTrip(ctx, rt, dest, op, req)
	if err != nil {
		return locale.MergeResult{}, err
	}

	incoming, err := DecodeLocale(body)
	if err != nil {
		c.getLogger().Warn("malformed response", "command", string(op), "error", err)
		return locale.MergeResult{}, fmt.Errorf("%s: %w", op, err)
	}

	res := c.store.Merge(incoming, source)
	if !res.Found() {
		c.getLogger().Debug("controller answered for a locale not in the cache",
			"command", string(op),
			"locale", incoming.Name,
		)
		return res, nil
	}

	if err := c.store.Persist(ctx); err != nil {
		return res, fmt.Errorf("%s: %w: %w", op, ErrPersist, err)
	}
	return res, nil
}

func (c *Client) roundTrip(ctx context.Context, rt transport.RoundTripper, dest *net.UDPAddr, op Command, req any) (string, error) {
	start := time.Now()
	body, err := rt.RoundTrip(ctx, dest, req)
	elapsed := time.Since(start)

	c.mu.RLock()
	observer := c.observer
	c.mu.RUnlock()
	if observer != nil {
		observer.ObserveRoundTrip(op, elapsed, err)
	}
	if err != nil {
		c.getLogger().Debug("controller round trip failed",
			"command", string(op),
			"destination", addrString(dest),
			"error", err,
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	c.getLogger().Debug("controller round trip",
		"command", string(op),
		"destination", addrString(dest),
		"elapsed", elapsed,
	)
	return body, nil
}

func addrString(addr *net.UDPAddr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
