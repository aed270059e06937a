package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "qwen3-0.6", cfg.LM.Model)
	assert.Equal(t, 2048, cfg.LM.ContextSize)
	assert.Equal(t, "whisper-tiny", cfg.STT.Model)
	assert.Equal(t, "lfm2-vl-450m", cfg.Vision.Model)
	assert.Equal(t, 10*time.Minute, cfg.HTTP.Timeout)
	assert.Empty(t, cfg.Remote.Token)
}

func TestLoadFromFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := `
cache_dir: /tmp/cactus-test
remote:
  url: http://localhost:8080/v1
  token: from-file
lm:
  model: gemma3-270m
  context_size: 4096
http:
  timeout: "30s"
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o644))

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cactus-test", cfg.CacheDir)
	assert.Equal(t, "http://localhost:8080/v1", cfg.Remote.URL)
	assert.Equal(t, "from-file", cfg.Remote.Token)
	assert.Equal(t, "gemma3-270m", cfg.LM.Model)
	assert.Equal(t, 4096, cfg.LM.ContextSize)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "whisper-tiny", cfg.STT.Model, "unset keys keep defaults")
}

func TestLoadEnvOverrides(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("remote:\n  token: from-file\n"), 0o644))
	t.Setenv("CACTUS_REMOTE_TOKEN", "from-env")
	t.Setenv("CACTUS_LM_CONTEXT_SIZE", "1024")

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Remote.Token)
	assert.Equal(t, 1024, cfg.LM.ContextSize)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("lm:\n  context_size: 0\n"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "context_size")
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".cache/cactus"), expandHome("~/.cache/cactus"))
	assert.Equal(t, "/abs", expandHome("/abs"))
}
