package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, BackendMemory, cfg.StorageBackend)
	require.Equal(t, "sqlite", cfg.DatabaseDriver)
	require.Equal(t, "GemaBot", cfg.BotUsername)
	require.Equal(t, []string{"general", "random", "help"}, cfg.DefaultRooms)
	require.Equal(t, 5*time.Second, cfg.TypingFreshness)
	require.Equal(t, 10*time.Second, cfg.TypingTTL)
	require.Equal(t, 10*time.Second, cfg.TypingSweepInterval)
	require.Equal(t, 5*time.Minute, cfg.OfflineAfter)
	require.Equal(t, 24*time.Hour, cfg.RetentionHorizon)
	require.Equal(t, 24*time.Hour, cfg.RetentionInterval)
	require.Equal(t, 50, cfg.MessageDefaultLimit)
	require.Equal(t, 200, cfg.MessageMaxLimit)
	require.Equal(t, int64(25*1024*1024), cfg.UploadMaxBytes())
	require.False(t, cfg.CloudinaryEnabled())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("GEMACHAT_STORAGE_BACKEND", "gorm")
	t.Setenv("GEMACHAT_DATABASE_DRIVER", "postgres")
	t.Setenv("GEMACHAT_TYPING_FRESHNESS", "3s")
	t.Setenv("GEMACHAT_ROOMS_DEFAULTS", "lobby, ,dev")
	t.Setenv("GEMACHAT_APP_PORT", ":9090")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	require.Equal(t, BackendGorm, cfg.StorageBackend)
	require.Equal(t, "postgres", cfg.DatabaseDriver)
	require.Equal(t, 3*time.Second, cfg.TypingFreshness)
	require.Equal(t, []string{"lobby", "dev"}, cfg.DefaultRooms)
	require.Equal(t, ":9090", cfg.HTTPAddress())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("duration", func(t *testing.T) {
		t.Setenv("GEMACHAT_RETENTION_HORIZON", "soon")
		_, err := load(viper.New())
		require.ErrorContains(t, err, "retention.horizon")
	})

	t.Run("backend", func(t *testing.T) {
		t.Setenv("GEMACHAT_STORAGE_BACKEND", "rawsql")
		_, err := load(viper.New())
		require.ErrorContains(t, err, "storage backend")
	})

	t.Run("driver", func(t *testing.T) {
		t.Setenv("GEMACHAT_DATABASE_DRIVER", "oracle")
		_, err := load(viper.New())
		require.ErrorContains(t, err, "database driver")
	})
}
