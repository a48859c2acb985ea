// Package logging provides structured logging for Runchain.
//
// It wraps the standard log/slog package so every component logs with the
// same default fields (service, version) and the same level filtering.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("device ready", "device", "ned2")
//	logger.Error("commit failed", "error", err)
package logging
