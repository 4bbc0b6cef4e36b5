package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashavatar/hashavatar/internal/kv"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	require.Equal(t, 720*time.Hour, cfg.SessionTTL)
	require.Equal(t, 168*time.Hour, cfg.SnapshotRetention)
	require.False(t, cfg.IsProduction())

	opts := cfg.KVOptions()
	require.Equal(t, kv.DriverMemory, opts.Driver)
	require.Equal(t, cfg.RedisAddr, opts.RedisAddr)
	require.Equal(t, "https://api.dicebear.com/7.x/initials/svg", cfg.Placeholder().BaseURL)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "c")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsNonPositiveUploadLimit(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("MAX_UPLOAD_BYTES", "0")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn", AppEnv: "staging"}, &buf)

	logger.Info("hidden")
	require.Empty(t, buf.String())

	logger.Warn("shown", slog.String("k", "v"))
	out := buf.String()
	require.Contains(t, out, `"msg":"shown"`)
	require.Contains(t, out, `"service":"hashavatar"`)
	require.Contains(t, out, `"env":"staging"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLevel("warning"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
}
