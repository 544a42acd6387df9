package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"weallmesh/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoad_UsesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := config.Load("non-existent-config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "feed", cfg.Pool.Purpose)
	assert.Equal(t, 8, cfg.Pool.PickK)
	assert.Equal(t, 60*time.Second, cfg.Pool.RefreshInterval)
	assert.Equal(t, 8*time.Second, cfg.Pool.CallTimeout)
	assert.Equal(t, 45*time.Second, cfg.Pool.FailCooldown)
	assert.Equal(t, 32, cfg.Pool.MaxPool)
	assert.Equal(t, 2, cfg.Dispatch.Retries)
	assert.Equal(t, "file", cfg.Snapshot.Backend)
	assert.Equal(t, ":8090", cfg.Status.Address)
}

func TestLoad_LoadsFromYAMLAndAppliesEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
logging:
  level: "debug"
  format: "console"

pool:
  seeds:
    - "https://node1.weall.example"
  purpose: "upload"
  pick_k: 4
  refresh_interval: 30s
  call_timeout: 5s
  fail_cooldown: 20s
  max_pool: 16
  mix: 0.5

dispatch:
  retries: 1

signaling:
  poll_timeout: 15s
  poll_backoff: 3s
  sends_per_second: 10
  send_burst: 20

snapshot:
  backend: "memory"
`)

	t.Setenv("WEALLMESH_LOG_LEVEL", "warn")
	t.Setenv("WEALLMESH_SEEDS", "https://a.example, https://b.example")
	t.Setenv("WEALLMESH_PURPOSE", "governance")
	t.Setenv("WEALLMESH_STATUS_ADDRESS", ":9999")
	t.Setenv("WEALLMESH_TOKEN", "env-token")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	// YAML values
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 4, cfg.Pool.PickK)
	assert.Equal(t, 30*time.Second, cfg.Pool.RefreshInterval)
	assert.Equal(t, 5*time.Second, cfg.Pool.CallTimeout)
	assert.Equal(t, 16, cfg.Pool.MaxPool)
	assert.Equal(t, 0.5, cfg.Pool.Mix)
	assert.Equal(t, 1, cfg.Dispatch.Retries)
	assert.Equal(t, 15*time.Second, cfg.Signaling.PollTimeout)
	assert.Equal(t, "memory", cfg.Snapshot.Backend)

	// Env overrides
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Pool.Seeds)
	assert.Equal(t, "governance", cfg.Pool.Purpose)
	assert.Equal(t, ":9999", cfg.Status.Address)
	assert.Equal(t, "env-token", cfg.Auth.Token)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "zero pick_k",
			yaml: "pool:\n  pick_k: 0\n",
		},
		{
			name: "mix out of range",
			yaml: "pool:\n  mix: 1.5\n",
		},
		{
			name: "negative retries",
			yaml: "dispatch:\n  retries: -1\n",
		},
		{
			name: "unknown snapshot backend",
			yaml: "snapshot:\n  backend: \"s3\"\n",
		},
		{
			name: "file backend without path",
			yaml: "snapshot:\n  backend: \"file\"\n  path: \"\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.yaml)
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, config.DefaultConfig().Validate())
}
