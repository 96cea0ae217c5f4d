package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	MQTT          MQTTMetrics       `json:"mqtt"`
	Locales       LocaleMetrics     `json:"locales"`
	Transport     *TransportMetrics `json:"transport,omitempty"`
	Relay         *RelayMetrics     `json:"relay,omitempty"`
	Database      *DatabaseMetrics  `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedFrames    uint64 `json:"dropped_frames"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// LocaleMetrics summarises the cached table.
type LocaleMetrics struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// TransportMetrics contains foreground connection counters.
type TransportMetrics struct {
	DatagramsTx      uint64 `json:"datagrams_tx"`
	DatagramsRx      uint64 `json:"datagrams_rx"`
	DatagramsDropped uint64 `json:"datagrams_dropped"`
	Errors           uint64 `json:"errors"`
	RoundTrips       uint64 `json:"round_trips"`
	LastActivity     string `json:"last_activity,omitempty"`
}

// RelayMetrics contains event fan-out counters.
type RelayMetrics struct {
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime and component counters.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Locales: LocaleMetrics{
			ByStatus: make(map[string]int),
		},
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
		metrics.WebSocket.DroppedFrames = s.hub.Dropped()
	}

	table := s.store.Snapshot()
	metrics.Locales.Total = len(table)
	for _, l := range table {
		metrics.Locales.ByStatus[string(l.Status)]++
	}

	if s.stats.MQTT != nil {
		metrics.MQTT = MQTTMetrics{
			Enabled:   true,
			Connected: s.stats.MQTT.IsConnected(),
		}
	}

	if s.stats.Transport != nil {
		st := s.stats.Transport.Stats()
		metrics.Transport = &TransportMetrics{
			DatagramsTx:      st.DatagramsTx,
			DatagramsRx:      st.DatagramsRx,
			DatagramsDropped: st.DatagramsDropped,
			Errors:           st.ErrorsTotal,
			RoundTrips:       st.RoundTrips,
		}
		if !st.LastActivity.IsZero() {
			metrics.Transport.LastActivity = st.LastActivity.UTC().Format(time.RFC3339)
		}
	}

	if s.stats.Relay != nil {
		metrics.Relay = &RelayMetrics{
			Processed: s.stats.Relay.Processed(),
			Dropped:   s.stats.Relay.Dropped(),
		}
	}

	if s.stats.Database != nil {
		dbStats := s.stats.Database.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
