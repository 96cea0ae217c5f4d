// Package logging provides structured logging for localectl.
//
// This package wraps Go's standard log/slog package so every component
// (transport, protocol, scheduler, relay, API) logs with the same default
// fields and level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	conn.SetLogger(logger.Component("transport"))
//	logger.Info("locale sync started", "interval", interval)
//
// Never log the MQTT password or the InfluxDB token.
package logging
