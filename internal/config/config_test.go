package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("CLASSROOM_JWT_SECRET", "secret")
	t.Setenv("CLASSROOM_DATABASE_URL", "sqlite://classroom.db")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 10, cfg.UploadMaxFileSizeMB)
	require.Equal(t, time.Minute, cfg.AutoCloseInterval)
	require.Equal(t, 30*time.Second, cfg.AutoCloseLockTTL)
	require.Equal(t, 20, cfg.SubmitRateLimit)
	require.Equal(t, "classroom", cfg.EventsChannel)
	require.False(t, cfg.CloudinaryEnabled())
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("CLASSROOM_JWT_SECRET", "secret")
	t.Setenv("CLASSROOM_DATABASE_URL", "postgres://localhost/classroom")
	t.Setenv("CLASSROOM_APP_PORT", ":9090")
	t.Setenv("CLASSROOM_LOG_LEVEL", "DEBUG")
	t.Setenv("CLASSROOM_AUTOCLOSE_INTERVAL", "15s")
	t.Setenv("CLASSROOM_UPLOAD_MAX_FILE_SIZE_MB", "25")
	t.Setenv("CLASSROOM_NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 15*time.Second, cfg.AutoCloseInterval)
	require.Equal(t, 25, cfg.UploadMaxFileSizeMB)
	require.Equal(t, "nats://localhost:4222", cfg.NATSURL)
}

func TestLoadRejectsMissingSecretsAndBadDurations(t *testing.T) {
	t.Setenv("CLASSROOM_JWT_SECRET", "")
	t.Setenv("CLASSROOM_DATABASE_URL", "sqlite://classroom.db")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("CLASSROOM_JWT_SECRET", "secret")
	t.Setenv("CLASSROOM_AUTOCLOSE_LOCK_TTL", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "autoclose.lock_ttl")
}
