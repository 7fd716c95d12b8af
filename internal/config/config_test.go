package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecTable(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.RealtimeSync.Enabled)
	assert.False(t, cfg.RealtimeSync.AutoEnable)
	assert.Equal(t, 500, cfg.RealtimeSync.DebounceMs)
	assert.Equal(t, 300_000, cfg.FullScanIntervalMs)
	assert.True(t, cfg.FreshnessGate.Enabled)
	assert.Equal(t, 2_000, cfg.FreshnessGate.CacheTTLMs)
	assert.Equal(t, 450_000, cfg.ChunkBudget)
	assert.Equal(t, 600_000, cfg.Pool.IdleReapMs)
}

func TestLoad_NoFilePresentUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, 450_000, cfg.ChunkBudget)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	contents := []byte(`
chunk_budget: 10
realtime_sync:
  enabled: false
  debounce_ms: 250
freshness_gate:
  cache_ttl_ms: 500
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".syncore.yaml"), contents, 0o644))

	cfg, err := Load(dir, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.ChunkBudget)
	assert.False(t, cfg.RealtimeSync.Enabled)
	assert.Equal(t, 250, cfg.RealtimeSync.DebounceMs)
	assert.Equal(t, 500, cfg.FreshnessGate.CacheTTLMs)
}

func TestLoad_UnrecognizedKeyWarnsButDoesNotFail(t *testing.T) {
	dir := t.TempDir()
	contents := []byte("not_a_real_key: true\nchunk_budget: 99\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".syncore.yaml"), contents, 0o644))

	cfg, err := Load(dir, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.ChunkBudget)
}

func TestEnvOverrides_TakePrecedenceOverYAML(t *testing.T) {
	dir := t.TempDir()
	contents := []byte("chunk_budget: 10\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".syncore.yaml"), contents, 0o644))

	t.Setenv("SYNCORE_CHUNK_BUDGET", "777")
	t.Setenv("SYNCORE_VECTOR_STORE_ADDRESS", "localhost:6334")

	cfg, err := Load(dir, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, 777, cfg.ChunkBudget)
	assert.Equal(t, "localhost:6334", cfg.VectorStore.Address)
}

func TestValidate_RequiresVectorStoreAddress(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())
	cfg.VectorStore.Address = "localhost:6334"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.VectorStore.Address = "localhost:6334"
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(300_000), cfg.FullScanInterval().Milliseconds())
	assert.Equal(t, int64(500), cfg.DebounceWindow().Milliseconds())
	assert.Equal(t, int64(2_000), cfg.FreshnessCacheTTL().Milliseconds())
	assert.Equal(t, int64(600_000), cfg.PoolIdleReap().Milliseconds())
}
