package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/hoststack/vm-agent/interfaces"
)

// VaultBackend implements a secret backend using HashiCorp Vault's KV v2
// engine. Each secret name maps to a key under a fixed data path.
//
// Authentication uses the standard Vault environment (VAULT_TOKEN et al.);
// the agent's mTLS material cannot be used here because the Vault backend
// may be consulted before a certificate has been issued.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a Vault secret backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path within the mount (e.g. "vm-agents/<device>")
//   - log: structured logger for operational insights
func NewVaultBackend(address, mountPath, dataPath string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	mountPath = strings.TrimSuffix(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

func (b *VaultBackend) secretPath(name interfaces.SecretName) string {
	// Vault KV v2 path structure.
	return fmt.Sprintf("%s/data/%s/%s", b.mountPath, b.dataPath, name.String())
}

// Fetch retrieves a secret by name from Vault.
func (b *VaultBackend) Fetch(ctx context.Context, name interfaces.SecretName) ([]byte, error) {
	path := b.secretPath(name)

	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrSecretNotFound
	}

	// KV v2 wraps the payload in a "data" map.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response for %s", name)
	}

	content, ok := data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content key not found in Vault data for %s", name)
	}

	return []byte(content), nil
}

// Store saves a secret to Vault. Vault applies its own access control, so
// the per-name file modes have no equivalent here.
func (b *VaultBackend) Store(ctx context.Context, name interfaces.SecretName, data []byte) error {
	path := b.secretPath(name)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content": string(data),
		},
	}

	if _, err := b.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", path), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored secret in Vault", slog.String("name", name.String()))
	return nil
}

// Delete removes a secret from Vault.
func (b *VaultBackend) Delete(ctx context.Context, name interfaces.SecretName) error {
	// Deleting metadata removes all versions of the KV v2 entry.
	path := fmt.Sprintf("%s/metadata/%s/%s", b.mountPath, b.dataPath, name.String())
	if _, err := b.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Available checks whether Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	health, err := b.client.Sys().HealthWithContext(ctx)
	if err != nil {
		b.log.Debug("Vault backend unavailable", "err", err)
		return false
	}
	return health.Initialized && !health.Sealed
}

// Name returns a unique identifier for this backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s", b.dataPath)
}
