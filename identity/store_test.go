package identity

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/hoststack/vm-agent/interfaces"
	"github.com/hoststack/vm-agent/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := secrets.NewFileBackend(dir, logger)
	require.NoError(t, err)
	return NewStore(backend, logger)
}

func TestGetOrCreateDeviceID_Format(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	id, err := store.GetOrCreateDeviceID(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^vm-[0-9a-f]{12}$`), id.String())
}

func TestGetOrCreate_IdempotentAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := newTestStore(t, dir)
	firstID, err := store.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	firstKey, err := store.GetOrCreateAPIKey(ctx)
	require.NoError(t, err)

	// Second call on the same store.
	againID, err := store.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, firstID, againID)

	// Fresh store over the same directory simulates a process restart.
	restarted := newTestStore(t, dir)
	restartID, err := restarted.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	restartKey, err := restarted.GetOrCreateAPIKey(ctx)
	require.NoError(t, err)

	assert.Equal(t, firstID, restartID)
	assert.Equal(t, firstKey, restartKey)
}

func TestGetOrCreateAPIKey_Entropy(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	key, err := store.GetOrCreateAPIKey(context.Background())
	require.NoError(t, err)

	// 32 bytes in unpadded URL-safe base64 encode to 43 characters.
	assert.Len(t, key.String(), 43)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9_-]+$`), key.String())
}

func TestGeneratedAPIKeysDoNotCollide(t *testing.T) {
	seen := make(map[interfaces.APIKey]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		key, err := generateAPIKey()
		require.NoError(t, err)
		_, dup := seen[key]
		require.False(t, dup, "api key collision after %d keys", i)
		seen[key] = struct{}{}
	}
}

func TestVerifyAPIKey(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	key, err := store.GetOrCreateAPIKey(context.Background())
	require.NoError(t, err)
	stored := key.String()

	assert.True(t, store.VerifyAPIKey(stored))
	assert.False(t, store.VerifyAPIKey(""))
	assert.False(t, store.VerifyAPIKey(stored[:len(stored)-1]))
	assert.False(t, store.VerifyAPIKey(stored[:len(stored)-1]+"#"))
}

func TestVerifyAPIKey_NoKeyMaterial(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	assert.False(t, store.VerifyAPIKey("anything"))
}

func TestLoadExisting(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	empty := newTestStore(t, dir)
	loaded, err := empty.LoadExisting(ctx)
	require.NoError(t, err)
	assert.False(t, loaded)

	_, err = empty.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	_, err = empty.GetOrCreateAPIKey(ctx)
	require.NoError(t, err)

	restarted := newTestStore(t, dir)
	loaded, err = restarted.LoadExisting(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.NotEmpty(t, restarted.DeviceID())
	assert.NotEmpty(t, restarted.APIKey())
}

func TestGetOrCreate_NoRaceOnConcurrentFirstUse(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	ctx := context.Background()

	const workers = 16
	ids := make([]interfaces.DeviceID, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, err := store.GetOrCreateDeviceID(ctx)
			assert.NoError(t, err)
			ids[n] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestSecondCallWritesNothing(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := newTestStore(t, dir)
	_, err := store.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	_, err = store.GetOrCreateAPIKey(ctx)
	require.NoError(t, err)

	statBefore := func(name string) os.FileInfo {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		return info
	}
	idInfo := statBefore("vm.id")
	keyInfo := statBefore("api.key")

	restarted := newTestStore(t, dir)
	_, err = restarted.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	_, err = restarted.GetOrCreateAPIKey(ctx)
	require.NoError(t, err)

	assert.Equal(t, idInfo.ModTime(), statBefore("vm.id").ModTime())
	assert.Equal(t, keyInfo.ModTime(), statBefore("api.key").ModTime())
}
