package observers

import "log/slog"

// NewDefaultLoggingObserver creates a logging observer writing to slog.Default at info level
func NewDefaultLoggingObserver() *LoggingObserver {
	return NewLoggingObserver(slog.Default(), slog.LevelInfo)
}
