// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// When Config.File is set, entries are also written to a rotating file
// managed by lumberjack.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8001"))
//	logger.Error("Failed to load app", zap.Error(err))
package logging
