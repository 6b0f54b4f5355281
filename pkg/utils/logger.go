package utils

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
)

// InitLogger installs the process logger. The level is read from
// OPENGPT_LOG_LEVEL (debug, info, warn, error) and defaults to info.
func InitLogger() {
	loggerOnce.Do(func() {
		logger = newLogger(parseLevel(os.Getenv("OPENGPT_LOG_LEVEL")))
		slog.SetDefault(logger)
	})
}

// GetLogger returns the process logger, initialising it on first use.
func GetLogger() *slog.Logger {
	InitLogger()
	return logger
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	}))
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
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
