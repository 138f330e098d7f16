package interfaces

import (
	"context"
	"io/fs"
)

// SecretName identifies a named secret within the agent's security
// directory. The set of names is fixed; backends map them to files or
// key/value paths.
type SecretName string

// Secret names used by the security subsystem. These correspond to the
// on-disk layout of the file backend.
const (
	// SecretDeviceID holds the raw device_id string. Not sensitive.
	SecretDeviceID SecretName = "vm.id"

	// SecretAPIKey holds the raw API key string. Owner-only.
	SecretAPIKey SecretName = "api.key"

	// SecretPrivateKey holds the PKCS#8 PEM private key. Owner-only.
	SecretPrivateKey SecretName = "vm.key"

	// SecretCSR holds the PEM certificate signing request.
	SecretCSR SecretName = "vm.csr"

	// SecretCertificate holds the PEM leaf certificate.
	SecretCertificate SecretName = "vm.crt"

	// SecretCACertificate holds the PEM CA trust anchor.
	SecretCACertificate SecretName = "ca.crt"

	// SecretTenantConfig holds the tenant binding JSON. Owner-only.
	SecretTenantConfig SecretName = "tenant.json"
)

// Mode returns the file mode the secret must be stored with. Key material
// and the tenant binding are owner-only; identifiers and certificates are
// world-readable.
func (n SecretName) Mode() fs.FileMode {
	switch n {
	case SecretAPIKey, SecretPrivateKey, SecretTenantConfig:
		return 0o600
	default:
		return 0o644
	}
}

// String returns the secret name as a string.
func (n SecretName) String() string {
	return string(n)
}

// SecretBackendLocation is a URI identifying a secret backend, for example
// file:///opt/vm-agent/security or vault://vault.example.com:8200/secret/agents.
type SecretBackendLocation string

// SecretBackend persists named secrets. Implementations must replace
// existing content atomically so a concurrent reader never observes a
// half-written secret.
type SecretBackend interface {
	// Fetch retrieves a secret by name. Returns ErrSecretNotFound if the
	// secret does not exist.
	Fetch(ctx context.Context, name SecretName) ([]byte, error)

	// Store persists a secret under the given name, applying the name's
	// required permissions before any content is observable.
	Store(ctx context.Context, name SecretName, data []byte) error

	// Delete removes a secret by name. Deleting an absent secret is not an error.
	Delete(ctx context.Context, name SecretName) error

	// Available checks whether the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns a unique identifier for this backend.
	Name() string
}

// SecretBackendFactory creates secret backends from location URIs.
type SecretBackendFactory interface {
	// BackendFor creates a secret backend for a location URI.
	BackendFor(location SecretBackendLocation) (SecretBackend, error)
}
