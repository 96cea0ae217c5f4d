// Package controllertest runs a fake locale controller on a loopback UDP
// socket for tests.
package controllertest

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/transport"
)

// Handler produces the reply to one request body.
//
// Return a value to have it framed and sent back, Raw to send datagrams
// verbatim, or nil to stay silent.
type Handler func(request string) any

// Raw is a reply sent as-is, one datagram per element.
type Raw [][]byte

// Request is a decoded controller request.
type Request struct {
	Command string `json:"command"`
	Locate  string `json:"locate,omitempty"`
	Value   string `json:"value,omitempty"`
}

// Controller is a fake controller listening on 127.0.0.1.
type Controller struct {
	conn *net.UDPConn

	mu       sync.Mutex
	handler  Handler
	requests []string
	delay    time.Duration

	wg sync.WaitGroup
}

// New starts a controller that answers with handler. It is closed by
// t.Cleanup.
func New(t testing.TB, handler Handler) *Controller {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen controller: %v", err)
	}

	c := &Controller{conn: conn, handler: handler}
	c.wg.Add(1)
	go c.serve()

	t.Cleanup(func() {
		conn.Close()
		c.wg.Wait()
	})
	return c
}

// Addr returns the controller address.
func (c *Controller) Addr() *net.UDPAddr {
	addr, _ := c.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// SetHandler replaces the handler.
func (c *Controller) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// SetDelay delays every reply by d.
func (c *Controller) SetDelay(d time.Duration) {
	c.mu.Lock()
	c.delay = d
	c.mu.Unlock()
}

// Requests returns the request bodies received so far.
func (c *Controller) Requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.requests))
	copy(out, c.requests)
	return out
}

// SendFrom writes a framed message to dest from this controller's socket.
func (c *Controller) SendFrom(dest *net.UDPAddr, payload any) error {
	prefix, body, err := transport.Encode(payload)
	if err != nil {
		return err
	}
	return c.sendRaw(dest, Raw{prefix, body})
}

func (c *Controller) serve() {
	defer c.wg.Done()

	buf := make([]byte, 65535)
	pending := make(map[string]uint64)

	for {
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		key := from.String()
		want, ok := pending[key]
		if !ok {
			size, err := transport.DecodePrefix(buf[:n])
			if err != nil {
				continue
			}
			pending[key] = size
			continue
		}
		delete(pending, key)

		body, err := transport.DecodeBody(buf[:n], want)
		if err != nil {
			continue
		}
		c.reply(from, body)
	}
}

func (c *Controller) reply(to *net.UDPAddr, body string) {
	c.mu.Lock()
	c.requests = append(c.requests, body)
	handler := c.handler
	delay := c.delay
	c.mu.Unlock()

	if handler == nil {
		return
	}
	resp := handler(body)
	if resp == nil {
		return
	}

	if delay > 0 {
		time.Sleep(delay)
	}

	if raw, ok := resp.(Raw); ok {
		_ = c.sendRaw(to, raw)
		return
	}
	_ = c.SendFrom(to, resp)
}

func (c *Controller) sendRaw(to *net.UDPAddr, raw Raw) error {
	for _, datagram := range raw {
		if _, err := c.conn.WriteToUDP(datagram, to); err != nil {
			return err
		}
	}
	return nil
}

// Devices is a Handler backed by a locale table, answering set, get and
// get_all like a real controller.
type Devices struct {
	mu    sync.Mutex
	table locale.Table
}

// NewDevices creates a device table.
func NewDevices(table locale.Table) *Devices {
	return &Devices{table: table.Clone()}
}

// Table returns the controller-side table.
func (d *Devices) Table() locale.Table {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.Clone()
}

// Set overrides a controller-side status, as if changed at the wall switch.
func (d *Devices) Set(name string, status locale.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx := d.table.Index(name); idx >= 0 {
		d.table[idx].Status = status
	}
}

// Handle implements Handler.
func (d *Devices) Handle(request string) any {
	var req Request
	if err := json.Unmarshal([]byte(request), &req); err != nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch req.Command {
	case "set":
		if idx := d.table.Index(req.Locate); idx >= 0 {
			d.table[idx].Status = locale.Status(req.Value)
		}
		return locale.Locale{Name: req.Locate, Status: locale.Status(req.Value)}
	case "get":
		if idx := d.table.Index(req.Locate); idx >= 0 {
			return d.table[idx]
		}
		return locale.Locale{Name: req.Locate, Status: locale.StatusOff}
	case "get_all":
		return map[string]locale.Table{"locale_list": d.table.Clone()}
	default:
		return nil
	}
}
