package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hoststack/vm-agent/interfaces"
)

const (
	// deviceIDHexLen is the number of hex characters after the "vm-" prefix.
	deviceIDHexLen = 12

	// apiKeyBytes is the entropy of a generated API key before encoding.
	apiKeyBytes = 32
)

// Store implements interfaces.IdentityStore over a secret backend.
type Store struct {
	backend interfaces.SecretBackend
	log     *slog.Logger

	// mu serializes get-or-create so at most one generation happens even
	// under concurrent first use.
	mu       sync.Mutex
	deviceID interfaces.DeviceID
	apiKey   interfaces.APIKey
}

// NewStore creates an identity store backed by the given secret backend.
func NewStore(backend interfaces.SecretBackend, log *slog.Logger) *Store {
	return &Store{backend: backend, log: log}
}

// GetOrCreateDeviceID returns the stored device ID, generating and
// persisting a new one if absent. Read failures are logged and treated as
// "absent"; persistence failures surface as *IdentityPersistenceError.
func (s *Store) GetOrCreateDeviceID(ctx context.Context) (interfaces.DeviceID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deviceID != "" {
		return s.deviceID, nil
	}

	if existing, ok := s.fetchTrimmed(ctx, interfaces.SecretDeviceID); ok {
		id, err := interfaces.NewDeviceID(existing)
		if err != nil {
			return "", &interfaces.IdentityPersistenceError{Name: interfaces.SecretDeviceID.String(), Err: err}
		}
		s.deviceID = id
		return id, nil
	}

	id := generateDeviceID()
	if err := s.backend.Store(ctx, interfaces.SecretDeviceID, []byte(id.String())); err != nil {
		return "", &interfaces.IdentityPersistenceError{Name: interfaces.SecretDeviceID.String(), Err: err}
	}

	s.log.Info("Generated new device identity", slog.String("deviceID", id.String()))
	s.deviceID = id
	return id, nil
}

// GetOrCreateAPIKey returns the stored API key, generating and persisting a
// new one if absent.
func (s *Store) GetOrCreateAPIKey(ctx context.Context) (interfaces.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.apiKey != "" {
		return s.apiKey, nil
	}

	if existing, ok := s.fetchTrimmed(ctx, interfaces.SecretAPIKey); ok {
		key, err := interfaces.NewAPIKey(existing)
		if err != nil {
			return "", &interfaces.IdentityPersistenceError{Name: interfaces.SecretAPIKey.String(), Err: err}
		}
		s.apiKey = key
		return key, nil
	}

	key, err := generateAPIKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}

	if err := s.backend.Store(ctx, interfaces.SecretAPIKey, []byte(key.String())); err != nil {
		return "", &interfaces.IdentityPersistenceError{Name: interfaces.SecretAPIKey.String(), Err: err}
	}

	s.log.Info("Generated new API key")
	s.apiKey = key
	return key, nil
}

// LoadExisting reports whether both identity values were already present
// and have been loaded into memory. It never generates.
func (s *Store) LoadExisting(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idRaw, err := s.backend.Fetch(ctx, interfaces.SecretDeviceID)
	if errors.Is(err, interfaces.ErrSecretNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	keyRaw, err := s.backend.Fetch(ctx, interfaces.SecretAPIKey)
	if errors.Is(err, interfaces.ErrSecretNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	id, err := interfaces.NewDeviceID(strings.TrimSpace(string(idRaw)))
	if err != nil {
		return false, fmt.Errorf("stored device id is corrupt: %w", err)
	}
	key, err := interfaces.NewAPIKey(strings.TrimSpace(string(keyRaw)))
	if err != nil {
		return false, fmt.Errorf("stored api key is corrupt: %w", err)
	}

	s.deviceID, s.apiKey = id, key
	return true, nil
}

// VerifyAPIKey compares a candidate against the stored key in constant
// time. Returns false, never an error, when no key material is loaded.
func (s *Store) VerifyAPIKey(candidate string) bool {
	s.mu.Lock()
	stored := s.apiKey
	s.mu.Unlock()

	if stored == "" || candidate == "" {
		return false
	}

	// Hashing both sides keeps the comparison constant-time regardless of
	// candidate length.
	storedSum := sha256.Sum256([]byte(stored))
	candidateSum := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(storedSum[:], candidateSum[:]) == 1
}

// DeviceID returns the in-memory device ID, or empty if not yet loaded.
func (s *Store) DeviceID() interfaces.DeviceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// APIKey returns the in-memory API key, or empty if not yet loaded.
func (s *Store) APIKey() interfaces.APIKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

// fetchTrimmed reads a secret, treating any read failure as absence.
func (s *Store) fetchTrimmed(ctx context.Context, name interfaces.SecretName) (string, bool) {
	data, err := s.backend.Fetch(ctx, name)
	if err != nil {
		if !errors.Is(err, interfaces.ErrSecretNotFound) {
			s.log.Warn("Failed to read secret, treating as absent",
				slog.String("name", name.String()), "err", err)
		}
		return "", false
	}
	trimmed := strings.TrimSpace(string(data))
	return trimmed, trimmed != ""
}

// generateDeviceID produces a fresh "vm-" + 12 hex character identifier.
func generateDeviceID() interfaces.DeviceID {
	id := uuid.New()
	return interfaces.DeviceID("vm-" + hex.EncodeToString(id[:])[:deviceIDHexLen])
}

// generateAPIKey produces a fresh 32-byte key in URL-safe base64 without padding.
func generateAPIKey() (interfaces.APIKey, error) {
	raw := make([]byte, apiKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return interfaces.APIKey(base64.RawURLEncoding.EncodeToString(raw)), nil
}
