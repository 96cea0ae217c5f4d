// Package influxdb writes localectl time-series data to InfluxDB v2.
//
// Three measurements are recorded:
//
//	locale_status   tags: locate, source     fields: value (1/0/-1), status
//	controller_rtt  tags: command            fields: elapsed_ms, failed
//	locale_sync     tags: destination        fields: locales, elapsed_ms
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteLocaleStatus("kitchen", "on", "poll", time.Now())
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Connection errors are returned directly; write errors are
// delivered to the SetOnError callback.
package influxdb
