package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: "127.0.0.1:9999"
orchestrator:
  url: "https://orchestrator.example"
  command_channel: true
secrets:
  location: "file:///tmp/agent-secrets"
tools:
  shell:
    blocked_commands: ["rm -rf /"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.ListenAddr)
	assert.Equal(t, "https://orchestrator.example", cfg.Orchestrator.URL)
	assert.True(t, cfg.Orchestrator.CommandChannel)
	assert.Equal(t, "file:///tmp/agent-secrets", cfg.Secrets.Location)
	assert.Equal(t, []string{"rm -rf /"}, cfg.Tools.Shell.BlockedCommands)

	// Unset fields keep their defaults.
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.MetricsAddr)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("TEST_PROVISIONING_TOKEN", "jwt-from-env")

	path := writeConfig(t, `
orchestrator:
  url: "https://orchestrator.example"
  provisioning_token: "${TEST_PROVISIONING_TOKEN}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "jwt-from-env", cfg.Orchestrator.ProvisioningToken)
}

func TestLoad_MissingOrchestratorURL(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":8080"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "orchestrator.url is required")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
