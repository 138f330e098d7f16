package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hoststack/vm-agent/interfaces"
)

// FileBackend implements a secret backend using flat files in a single
// directory. Writes go through a temp file and an atomic rename so a
// concurrent reader never observes a half-written secret, and the file mode
// is set before the content becomes visible under its final name.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file secret backend rooted at the given
// directory, creating it with owner-only permissions if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create security directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch retrieves a secret by name. Returns interfaces.ErrSecretNotFound
// when the file does not exist.
func (b *FileBackend) Fetch(ctx context.Context, name interfaces.SecretName) ([]byte, error) {
	filePath := filepath.Join(b.baseDir, name.String())

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}

	b.log.Debug("Fetched secret from file",
		slog.String("name", name.String()),
		slog.Int("size", len(data)))

	return data, nil
}

// Store persists a secret under its name with the name's required file
// mode. The temp file is created with the final mode up front, so the
// content is never world-readable, not even transiently.
func (b *FileBackend) Store(ctx context.Context, name interfaces.SecretName, data []byte) error {
	filePath := filepath.Join(b.baseDir, name.String())
	mode := name.Mode()

	tmp, err := os.CreateTemp(b.baseDir, "."+name.String()+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set secret file mode: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write secret file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close secret file: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to replace secret file: %w", err)
	}

	b.log.Debug("Stored secret in file",
		slog.String("name", name.String()),
		slog.String("mode", mode.String()))

	return nil
}

// Delete removes a secret file. Deleting an absent secret is not an error.
func (b *FileBackend) Delete(ctx context.Context, name interfaces.SecretName) error {
	err := os.Remove(filepath.Join(b.baseDir, name.String()))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete secret file: %w", err)
	}
	return nil
}

// Available checks if the backing directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}
