package secrets

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hoststack/vm-agent/interfaces"
)

// BackendFactory creates secret backends from location URIs.
type BackendFactory struct {
	log *slog.Logger
}

// NewBackendFactory creates a factory instance.
func NewBackendFactory(log *slog.Logger) *BackendFactory {
	return &BackendFactory{log: log}
}

// BackendFor creates a secret backend from a location URI.
//
// Supported schemes:
//   - file:///path/to/security/dir - local filesystem storage
//   - vault://host:port/mount/data/path - HashiCorp Vault KV v2
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *BackendFactory) BackendFor(location interfaces.SecretBackendLocation) (interfaces.SecretBackend, error) {
	u, err := url.Parse(string(location))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return f.createFileBackend(u)
	case "vault":
		return f.createVaultBackend(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// createFileBackend creates a filesystem backend.
// URI format: file:///opt/vm-agent/security
func (f *BackendFactory) createFileBackend(u *url.URL) (interfaces.SecretBackend, error) {
	if u.Path == "" {
		return nil, fmt.Errorf("%w: file URI has no path", interfaces.ErrInvalidLocationURI)
	}
	return NewFileBackend(u.Path, f.log)
}

// createVaultBackend creates a Vault backend.
// URI format: vault://vault.example.com:8200/secret/vm-agents/device-1
// The first path segment is the KV mount, the rest is the data path.
// The query parameter scheme=http selects cleartext transport for
// development setups; TLS is the default.
func (f *BackendFactory) createVaultBackend(u *url.URL) (interfaces.SecretBackend, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("%w: vault URI has no host", interfaces.ErrInvalidLocationURI)
	}

	segments := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return nil, fmt.Errorf("%w: vault URI needs /mount/data/path", interfaces.ErrInvalidLocationURI)
	}

	transport := "https"
	if u.Query().Get("scheme") == "http" {
		transport = "http"
	}

	address := fmt.Sprintf("%s://%s", transport, u.Host)
	return NewVaultBackend(address, segments[0], segments[1], f.log)
}
