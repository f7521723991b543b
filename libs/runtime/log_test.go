package runtime

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "/tmp/clinic.log")
	t.Setenv("LOG_FILE_MAX_SIZE_MB", "nope")

	cfg := LogConfigFromEnv()
	if cfg.Level != "debug" || cfg.File != "/tmp/clinic.log" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.MaxSizeMB != 100 {
		t.Fatalf("expected fallback max size 100, got %d", cfg.MaxSizeMB)
	}
}
