package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, LocalBolt, cfg.LocalDriver)
	require.Equal(t, RemotePostgres, cfg.RemoteDriver)
	require.Equal(t, 30*time.Second, cfg.ResumeTTL)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "userstate.changed", cfg.StateTopic)
	require.Equal(t, 30*time.Minute, cfg.WatchIdle)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOCAL_DRIVER", "sqlite")
	t.Setenv("REMOTE_DRIVER", "none")
	t.Setenv("RESUME_TTL", "45s")
	t.Setenv("KAFKA_BROKERS", " a:9092 , ,b:9092")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, LocalSQLite, cfg.LocalDriver)
	require.Equal(t, RemoteNone, cfg.RemoteDriver)
	require.Equal(t, 45*time.Second, cfg.ResumeTTL)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("REMOTE_DRIVER", "dynamo")

	_, err := Load()
	require.ErrorContains(t, err, "REMOTE_DRIVER")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("RESUME_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsNegativeWatchIdle(t *testing.T) {
	t.Setenv("NOTIFICATION_WATCH_IDLE", "-1m")

	_, err := Load()
	require.ErrorContains(t, err, "NOTIFICATION_WATCH_IDLE")
}

func TestValidateRejectsZeroTTL(t *testing.T) {
	cfg := Config{LocalDriver: LocalMemory, RemoteDriver: RemoteNone}
	require.Error(t, cfg.Validate())
}
