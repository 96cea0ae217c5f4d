package scheduler

import "errors"

// Scheduler errors.
var (
	// ErrInvalidInterval is returned when a polling interval cannot be parsed
	// or is below MinInterval.
	ErrInvalidInterval = errors.New("scheduler: invalid interval")

	// ErrInvalidDestination is returned when the controller address cannot be
	// resolved.
	ErrInvalidDestination = errors.New("scheduler: invalid destination")

	// ErrNotRunning is returned when triggering a refresh while idle.
	ErrNotRunning = errors.New("scheduler: not running")

	// ErrClosed is returned when configuring a closed scheduler.
	ErrClosed = errors.New("scheduler: closed")
)
