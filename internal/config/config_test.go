package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("ARCADE_PG_PASSWORD", "sekrit")

	raw := `
server:
  port: 9090
postgres:
  user: arcade
  password: ${ARCADE_PG_PASSWORD}
achievements:
  score_thresholds: [100, 200]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "sekrit", cfg.Postgres.Password)
	require.Equal(t, []int64{100, 200}, cfg.Achievements.ScoreThresholds)

	// untouched sections fall back to defaults
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "arcade-scores", cfg.Kafka.Topic)
	require.Equal(t, 20, cfg.Leaderboard.DefaultLimit)
	require.Equal(t, []int64{5, 10, 25}, cfg.Achievements.PlayThresholds)
	require.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Sync.Enabled)
	require.False(t, cfg.Kafka.Enabled)
	require.Equal(t, []int64{500, 1000}, cfg.Achievements.ScoreThresholds)
	require.Equal(t, 500, cfg.Leaderboard.MaxLimit)
}

func TestPostgresConnectionString(t *testing.T) {
	pg := PostgresConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "arcade",
		Password: "pw",
		Database: "hub",
	}
	require.Equal(t, "postgres://arcade:pw@db.internal:5433/hub?sslmode=disable", pg.ConnectionString())

	pg.SSLMode = "require"
	require.Equal(t, "postgres://arcade:pw@db.internal:5433/hub?sslmode=require", pg.ConnectionString())
}
