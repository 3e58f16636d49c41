package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolbridge/internal/registry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Servers)
}

func TestLoadFullConfig(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_secret")

	path := writeConfig(t, `
log:
  level: debug
  format: text
retry:
  max_retries: 5
bedrock:
  region: eu-west-1
  model_id: anthropic.claude-haiku-4-5-20251001-v1:0
ollama:
  base_url: http://localhost:11434
servers:
  - name: github
    transport: stdio
    command: github-mcp
    args: ["--stdio"]
    env:
      GITHUB_TOKEN: ${GITHUB_TOKEN}
  - name: docs
    transport: stream
    url: https://docs.example.com/mcp
    owner: user-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, "eu-west-1", cfg.Bedrock.Region)

	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, registry.TransportStdio, cfg.Servers[0].Transport)
	assert.Equal(t, "ghp_secret", cfg.Servers[0].Env["GITHUB_TOKEN"])
	assert.Equal(t, "user-1", cfg.Servers[1].Owner)
}

func TestLoadRejectsInvalidServer(t *testing.T) {
	path := writeConfig(t, `
servers:
  - name: broken
    transport: stdio
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing command")
}

func TestLoadRejectsReservedName(t *testing.T) {
	path := writeConfig(t, `
servers:
  - name: agent-assistant
    transport: stdio
    command: something
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	path := writeConfig(t, `
servers:
  - name: github
    transport: stdio
    command: github-mcp
  - name: github
    transport: stdio
    command: github-mcp
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TOOLBRIDGE_OLLAMA_URL", "http://models.internal:11434")
	t.Setenv("TOOLBRIDGE_BEDROCK_ENDPOINT", "https://runtime.internal")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://models.internal:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "https://runtime.internal", cfg.Bedrock.RuntimeEndpoint)
}
