// Package logging provides structured logging for roycemorebot.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the bot.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Debug mode (DEBUG environment variable) forces debug level
//
// # Configuration
//
// Logging is configured via the optional "logging" section of config.json:
//
//	"logging": {
//	  "level": "info",    // debug, info, warn, error
//	  "format": "json",   // json, text
//	  "output": "stdout"  // stdout, stderr
//	}
//
// # Usage
//
//	logger := logging.New(settings.Logging, settings.Debug, "1.0.0")
//	logger.Info("extension loaded", "extension", "exts.status")
//
// Never log the bot token or broker credentials.
package logging
