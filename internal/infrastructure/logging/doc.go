// Package logging provides structured logging for the device-set actor.
//
// It wraps log/slog with JSON or text output, level filtering, and default
// service/version fields on every entry.
//
// Configuration comes from the logging section of the config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	loop.SetLogger(logger.Component("reactor"))
//	logger.Info("actor started", "slots", len(cfg.Actor.Slots))
//
// Never log secrets such as the MQTT password or the InfluxDB token.
package logging
