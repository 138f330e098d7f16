package tools

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecute(t *testing.T) {
	exec := NewShellExecutor(nil, testLogger())

	result, err := exec.Execute(context.Background(), "echo hello", "", 0)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ReturnCode)
	assert.Equal(t, "hello\n", result.Stdout)
}

func TestExecute_NonZeroExitIsNotAnError(t *testing.T) {
	exec := NewShellExecutor(nil, testLogger())

	result, err := exec.Execute(context.Background(), "exit 3", "", 0)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 3, result.ReturnCode)
}

func TestExecute_CommandNotFoundHint(t *testing.T) {
	exec := NewShellExecutor(nil, testLogger())

	result, err := exec.Execute(context.Background(), "definitely-not-a-command-xyz", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 127, result.ReturnCode)
	assert.Contains(t, result.ErrorHint, "definitely-not-a-command-xyz")
}

func TestExecute_BlockedCommand(t *testing.T) {
	exec := NewShellExecutor(&ShellConfig{BlockedCommands: []string{"rm -rf"}}, testLogger())

	assert.False(t, exec.IsCommandAllowed("rm -rf /tmp/x"))
	_, err := exec.Execute(context.Background(), "rm -rf /tmp/x", "", 0)
	assert.ErrorContains(t, err, "blocked by security policy")
}

func TestExecute_Timeout(t *testing.T) {
	exec := NewShellExecutor(&ShellConfig{MaxTimeout: time.Hour}, testLogger())

	start := time.Now()
	_, err := exec.Execute(context.Background(), "sleep 10", "", 200*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorContains(t, err, "timed out")
}

func TestExecute_TimeoutCappedByPolicy(t *testing.T) {
	exec := NewShellExecutor(&ShellConfig{MaxTimeout: 200 * time.Millisecond}, testLogger())

	_, err := exec.Execute(context.Background(), "sleep 10", "", time.Hour)
	assert.ErrorContains(t, err, "timed out")
}

func TestHistory(t *testing.T) {
	exec := NewShellExecutor(nil, testLogger())

	_, err := exec.Execute(context.Background(), "true", "", 0)
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), "false", "", 0)
	require.NoError(t, err)

	history := exec.History()
	require.Len(t, history, 2)
	assert.Equal(t, "true", history[0].Command)
	assert.Equal(t, "false", history[1].Command)
}

func TestExecute_WorkingDir(t *testing.T) {
	dir := t.TempDir()
	exec := NewShellExecutor(nil, testLogger())

	result, err := exec.Execute(context.Background(), "pwd", dir, 0)
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, dir)
}
