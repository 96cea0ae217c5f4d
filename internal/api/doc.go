// Package api implements the HTTP REST API and WebSocket server for
// localectl.
//
// This package provides:
//   - Locale endpoints: cached reads, set and refresh against the controller
//   - Sync endpoints: configure, stop, trigger and inspect periodic polling
//   - Status history reads backed by SQLite
//   - A metrics endpoint with runtime and component counters
//   - A WebSocket hub for live locale.status_changed and sync.completed events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Error mapping
//
// Controller failures surface as gateway errors: a receive timeout is 504
// ("controller unreachable"), a malformed reply or socket failure is 502.
// Every error body is {"status", "code", "message"}.
//
// # Graceful degradation
//
// The history and sync endpoints answer 503 when their backing component is
// disabled; locale reads and writes keep working.
package api
