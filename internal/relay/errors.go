package relay

import "errors"

// Relay errors.
var (
	// ErrNoStore is returned by New when no locale store is supplied.
	ErrNoStore = errors.New("relay: locale store is required")

	// ErrBadCommand is returned for an MQTT command that cannot be parsed or
	// names an unsupported operation.
	ErrBadCommand = errors.New("relay: invalid command")

	// ErrNotRunning is returned when a command arrives before Start or
	// after Close.
	ErrNotRunning = errors.New("relay: not running")
)
