package transport

import "errors"

// Transport errors.
//
// Callers distinguish the three failure kinds with errors.Is:
//
//	switch {
//	case errors.Is(err, transport.ErrTimeout):
//	    // controller unreachable
//	case errors.Is(err, transport.ErrDecode):
//	    // controller spoke garbage
//	case errors.Is(err, transport.ErrTransport):
//	    // socket failure
//	}
var (
	// ErrTransport is returned when a socket read or write fails.
	ErrTransport = errors.New("transport: socket error")

	// ErrDecode is returned when a length prefix or body datagram does not
	// have the expected shape.
	ErrDecode = errors.New("transport: decode error")

	// ErrTimeout is returned when no datagram arrives within the receive
	// timeout.
	ErrTimeout = errors.New("transport: timed out waiting for controller")

	// ErrPayloadTooLarge is returned when an encoded body does not fit in a
	// single datagram.
	ErrPayloadTooLarge = errors.New("transport: payload exceeds datagram size")

	// ErrClosed is returned when using a closed connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrNoDestination is returned when sending without a destination address.
	ErrNoDestination = errors.New("transport: no destination")
)
