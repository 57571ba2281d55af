package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "./badger-data", cfg.Badger.Path)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.Snapshots.Enabled)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
redis:
  addr: redis.internal:6380
  db: 2
snapshots:
  enabled: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.False(t, cfg.Snapshots.Enabled)
	assert.Equal(t, ":8080", cfg.HTTP.Addr, "unset keys keep their defaults")

	opts := cfg.RedisOptions()
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty addr", "redis:\n  addr: \"\"\n", "redis.addr"},
		{"negative db", "redis:\n  db: -1\n", "redis.db"},
		{"bad timeout", "snapshots:\n  timeout: soon\n", "snapshots.timeout"},
		{"snapshots without badger", "badger:\n  path: \"\"\n", "badger.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestFetchTimeout(t *testing.T) {
	cfg := &Config{Snapshots: SnapshotConfig{Timeout: "5s"}}
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout())

	cfg.Snapshots.Timeout = "invalid"
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout())
}
