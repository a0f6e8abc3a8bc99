// Package logging provides structured logging for brickd.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the runtime.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
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
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("dispatcher started", "buffered", true)
//	logger.Error("send failed", "error", err)
package logging
