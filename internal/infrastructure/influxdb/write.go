package influxdb

import (
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementLocaleStatus  = "locale_status"
	measurementControllerRTT = "controller_rtt"
	measurementSync          = "locale_sync"
)

// StatusValue maps a locale status to a numeric field: on=1, off=0,
// anything else (including "unknown") -1.
func StatusValue(status string) int {
	switch {
	case strings.EqualFold(status, "on"):
		return 1
	case strings.EqualFold(status, "off"):
		return 0
	default:
		return -1
	}
}

// WriteLocaleStatus records one locale status observation.
func (c *Client) WriteLocaleStatus(name, status, source string, at time.Time) {
	c.writePoint(localeStatusPoint(name, status, source, at))
}

// WriteRoundTrip records the latency of one controller exchange.
// failed marks exchanges that ended in an error.
func (c *Client) WriteRoundTrip(op string, elapsed time.Duration, failed bool) {
	c.writePoint(roundTripPoint(op, elapsed, failed, time.Now()))
}

// WriteSync records one completed get_all poll.
func (c *Client) WriteSync(destination string, locales int, elapsed time.Duration, at time.Time) {
	c.writePoint(syncPoint(destination, locales, elapsed, at))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func localeStatusPoint(name, status, source string, at time.Time) *write.Point {
	return write.NewPoint(
		measurementLocaleStatus,
		map[string]string{
			"locate": name,
			"source": source,
		},
		map[string]interface{}{
			"value":  StatusValue(status),
			"status": status,
		},
		at,
	)
}

func roundTripPoint(op string, elapsed time.Duration, failed bool, at time.Time) *write.Point {
	return write.NewPoint(
		measurementControllerRTT,
		map[string]string{
			"command": op,
		},
		map[string]interface{}{
			"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
			"failed":     failed,
		},
		at,
	)
}

func syncPoint(destination string, locales int, elapsed time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		measurementSync,
		map[string]string{
			"destination": destination,
		},
		map[string]interface{}{
			"locales":    locales,
			"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
		},
		at,
	)
}
