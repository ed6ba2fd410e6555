package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/config"
)

// Logger wraps slog.Logger with roycemorebot-specific defaults.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// Parameters:
//   - cfg: Logging section of the settings
//   - debug: Debug mode; forces the debug level regardless of cfg.Level
//   - version: Application version for the default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, debug bool, version string) *Logger {
	return newWithWriter(cfg, debug, version, outputWriter(cfg.Output))
}

func newWithWriter(cfg config.LoggingConfig, debug bool, version string, output io.Writer) *Logger {
	level := parseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "roycemorebot"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

func outputWriter(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	extLogger := logger.With("component", "extension")
//	extLogger.Info("loaded") // Includes component=extension
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a logger for use before configuration is loaded.
// It writes JSON to stdout at info level, or debug level when DEBUG is set.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, config.DebugMode(), "dev")
}
