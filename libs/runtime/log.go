package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls where and at which level a service logs.
type LogConfig struct {
	Level string
	// File enables rotated file output next to stdout when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LogConfigFromEnv reads LOG_LEVEL and LOG_FILE*.
func LogConfigFromEnv() LogConfig {
	return LogConfig{
		Level:      Getenv("LOG_LEVEL", "info"),
		File:       Getenv("LOG_FILE", ""),
		MaxSizeMB:  atoiOr(Getenv("LOG_FILE_MAX_SIZE_MB", ""), 100),
		MaxBackups: atoiOr(Getenv("LOG_FILE_MAX_BACKUPS", ""), 5),
		MaxAgeDays: atoiOr(Getenv("LOG_FILE_MAX_AGE_DAYS", ""), 14),
	}
}

func NewLogger(service string) *slog.Logger {
	return NewLoggerWithConfig(service, LogConfigFromEnv())
}

func NewLoggerWithConfig(service string, cfg LogConfig) *slog.Logger {
	var w io.Writer = os.Stdout
	if strings.TrimSpace(cfg.File) != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})
	return slog.New(h).With("service", service)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
