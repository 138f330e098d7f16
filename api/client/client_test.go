package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hoststack/vm-agent/httpserver"
	"github.com/hoststack/vm-agent/secrets"
	"github.com/hoststack/vm-agent/security"
	"github.com/hoststack/vm-agent/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startAgent runs a real agent router behind httptest and returns a
// client configured with its API key.
func startAgent(t *testing.T) *Client {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend, err := secrets.NewFileBackend(t.TempDir(), log)
	require.NoError(t, err)

	registry := tools.NewRegistry(nil, log)
	sec := security.NewContext(backend, "http://unused", registry.Capabilities(), log)
	require.NoError(t, sec.EnsureCredentials(context.Background()))

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      log,
		GracefulShutdownDuration: time.Second,
	}, sec, httpserver.NewHandler(sec, registry, log))
	require.NoError(t, err)

	agent := httptest.NewServer(srv.Router())
	t.Cleanup(agent.Close)

	return New(agent.URL, sec.APIKey().String())
}

func TestHealth(t *testing.T) {
	agent := startAgent(t)

	health, err := agent.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])
}

func TestInfo(t *testing.T) {
	agent := startAgent(t)

	info, err := agent.Info(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, `^vm-[0-9a-f]{12}$`, info["device_id"])
}

func TestExecuteCommand(t *testing.T) {
	agent := startAgent(t)

	result, err := agent.ExecuteCommand(context.Background(), "echo remote", 0)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "remote\n", result.Stdout)
}

func TestRPCErrorSurfaces(t *testing.T) {
	agent := startAgent(t)

	_, err := agent.ExecuteCommand(context.Background(), "", 0)
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Message, "command is required")
}

func TestWrongKeyRejected(t *testing.T) {
	agent := startAgent(t)
	agent.apiKey = "wrong"

	_, err := agent.Info(context.Background())
	assert.ErrorContains(t, err, "status 401")
}

func TestCACertificate_NotInstalled(t *testing.T) {
	agent := startAgent(t)

	_, err := agent.CACertificate(context.Background())
	assert.ErrorContains(t, err, "status 404")
}

func TestFileRoundTrip(t *testing.T) {
	agent := startAgent(t)
	dir := t.TempDir()
	path := dir + "/note.txt"

	require.NoError(t, agent.WriteFile(context.Background(), path, "via client"))

	content, err := agent.ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "via client", content.Content)

	entries, err := agent.ListDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "note.txt", entries[0].Name)
}
