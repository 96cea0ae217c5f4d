// Package relay connects the locale store and the sync scheduler to
// localectl's outer surfaces.
//
// Every status change the store announces is:
//   - recorded in the SQLite history table
//   - written to InfluxDB as a locale_status point
//   - published retained on {prefix}/state/{name}
//   - broadcast to WebSocket clients on "locale.status_changed"
//
// Every successful poll is broadcast on "sync.completed" and published on
// {prefix}/event/sync. Controller round-trip latency goes to InfluxDB.
//
// The relay also subscribes to {prefix}/command/+ and answers set/get
// requests on {prefix}/response/{request_id}.
package relay
