package config

import (
	"io"
	"log/slog"
	"os"
)

// LogLevelEnv overrides logging.level when set.
const LogLevelEnv = "DOCGATE_LOG_LEVEL"

// SlogLevel converts the configured level to a slog.Level.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger. verbose forces debug; DOCGATE_LOG_LEVEL beats the file.
func (l LoggingConfig) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := l.Level
	if env := os.Getenv(LogLevelEnv); env != "" {
		level = NormalizeLogLevel(env)
	}
	if verbose {
		level = LogLevelDebug
	}

	opts := &slog.HandlerOptions{Level: level.SlogLevel()}
	if l.Format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
