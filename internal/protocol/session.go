package protocol

import (
	"context"
	"net"

	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/transport"
)

// Session binds a Client to one connection and controller address.
//
// The API, the MQTT command handler and the CLI share a single Session over
// the foreground connection; its RoundTrip lock serialises them.
type Session struct {
	client *Client
	rt     transport.RoundTripper
	dest   *net.UDPAddr
}

// NewSession returns a Session sending to dest over rt.
func NewSession(client *Client, rt transport.RoundTripper, dest *net.UDPAddr) *Session {
	return &Session{client: client, rt: rt, dest: dest}
}

// Destination returns the controller address.
func (s *Session) Destination() *net.UDPAddr {
	return s.dest
}

// Store returns the store the session's client merges into.
func (s *Session) Store() *locale.Store {
	return s.client.Store()
}

// Set runs Client.Set against the bound controller.
func (s *Session) Set(ctx context.Context, name, desired string) (locale.MergeResult, error) {
	return s.client.Set(ctx, s.rt, s.dest, name, desired)
}

// Get runs Client.Get against the bound controller.
func (s *Session) Get(ctx context.Context, name string) (locale.MergeResult, error) {
	return s.client.Get(ctx, s.rt, s.dest, name)
}

// GetAll runs Client.GetAll against the bound controller.
func (s *Session) GetAll(ctx context.Context) (locale.Table, error) {
	return s.client.GetAll(ctx, s.rt, s.dest)
}
