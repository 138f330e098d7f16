package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	manager := NewFileManager(nil, testLogger())
	path := filepath.Join(dir, "nested", "greeting.txt")

	written, err := manager.WriteFile(path, "hello world")
	require.NoError(t, err)
	assert.Equal(t, int64(11), written.Size)

	read, err := manager.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", read.Content)
}

func TestReadFile_SizeCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))

	manager := NewFileManager(&FileConfig{MaxFileSize: 16}, testLogger())
	_, err := manager.ReadFile(path)
	assert.ErrorContains(t, err, "too large")
}

func TestPathPolicy(t *testing.T) {
	manager := NewFileManager(&FileConfig{
		AllowedPaths: []string{"/var/log/*", "/tmp/*"},
		BlockedPaths: []string{"/var/log/secure*"},
	}, testLogger())

	assert.True(t, manager.IsPathAllowed("/var/log/syslog"))
	assert.True(t, manager.IsPathAllowed("/tmp/scratch"))
	assert.False(t, manager.IsPathAllowed("/etc/shadow"))
	assert.False(t, manager.IsPathAllowed("/var/log/secure"))

	_, err := manager.ReadFile("/etc/shadow")
	assert.ErrorContains(t, err, "blocked by security policy")
}

func TestPathPolicy_EmptyAllowsAll(t *testing.T) {
	manager := NewFileManager(nil, testLogger())
	assert.True(t, manager.IsPathAllowed("/anywhere/at/all"))
}

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	entries, err := NewFileManager(nil, testLogger()).ListDirectory(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Directories first, then files by name.
	assert.Equal(t, "sub", entries[0].Name)
	assert.Equal(t, "directory", entries[0].Type)
	assert.Equal(t, "a.txt", entries[1].Name)
	assert.Equal(t, "b.txt", entries[2].Name)
}

func TestListDirectory_Missing(t *testing.T) {
	_, err := NewFileManager(nil, testLogger()).ListDirectory("/does/not/exist")
	assert.Error(t, err)
}
