package security

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hoststack/vm-agent/cryptoutils"
	"github.com/hoststack/vm-agent/identity"
	"github.com/hoststack/vm-agent/interfaces"
	"github.com/hoststack/vm-agent/mtls"
	"github.com/hoststack/vm-agent/registration"
)

// Context owns the agent's credential lifecycle. Construct one per
// process and share it; all methods are safe for concurrent use.
type Context struct {
	backend      interfaces.SecretBackend
	identities   *identity.Store
	registrar    *registration.Client
	tenants      *registration.TenantManager
	tlsBuilder   *mtls.ContextBuilder
	capabilities map[string]bool
	log          *slog.Logger
}

func NewContext(backend interfaces.SecretBackend, orchestratorURL string, capabilities map[string]bool, log *slog.Logger) *Context {
	return &Context{
		backend:      backend,
		identities:   identity.NewStore(backend, log),
		registrar:    registration.NewClient(orchestratorURL, backend, log),
		tenants:      registration.NewTenantManager(backend, log),
		tlsBuilder:   mtls.NewContextBuilder(backend, log),
		capabilities: capabilities,
		log:          log.With("component", "security"),
	}
}

// EnsureCredentials establishes a durable device identity and API key,
// creating and persisting them on first run and loading them verbatim
// on every later one. Callers must not start a listener before this
// returns.
func (c *Context) EnsureCredentials(ctx context.Context) error {
	deviceID, err := c.identities.GetOrCreateDeviceID(ctx)
	if err != nil {
		return fmt.Errorf("could not establish device identity: %w", err)
	}

	if _, err := c.identities.GetOrCreateAPIKey(ctx); err != nil {
		return fmt.Errorf("could not establish API key: %w", err)
	}

	c.log.Info("credentials ready", slog.String("device_id", string(deviceID)))
	return nil
}

// Provision runs a full registration against the orchestrator: fresh
// key material, CSR submission, certificate verification and storage.
// A non-empty provisioningToken binds the device to its organization
// first. Calling Provision on an already registered device re-registers
// it with a new key and certificate.
func (c *Context) Provision(ctx context.Context, provisioningToken string) (interfaces.TLSCert, error) {
	if err := c.EnsureCredentials(ctx); err != nil {
		return nil, err
	}
	deviceID := c.identities.DeviceID()
	apiKey := c.identities.APIKey()

	if provisioningToken != "" {
		if _, err := c.tenants.ProvisionWithToken(ctx, provisioningToken); err != nil {
			return nil, fmt.Errorf("could not bind tenant from provisioning token: %w", err)
		}
	}

	keyPEM, csr, err := c.generateKeyMaterial(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	// Key and CSR hit disk before any network use so a crash after
	// submission never strands a CSR without its key.
	if err := c.backend.Store(ctx, interfaces.SecretPrivateKey, []byte(keyPEM)); err != nil {
		return nil, &interfaces.IdentityPersistenceError{Name: interfaces.SecretPrivateKey.String(), Err: err}
	}
	if err := c.backend.Store(ctx, interfaces.SecretCSR, []byte(csr)); err != nil {
		return nil, &interfaces.IdentityPersistenceError{Name: interfaces.SecretCSR.String(), Err: err}
	}

	req := registration.BuildRequest(deviceID, apiKey, csr, c.capabilities, provisioningToken)
	cert, err := c.registrar.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := cryptoutils.VerifyCertificate(keyPEM, cert, string(deviceID)); err != nil {
		return nil, fmt.Errorf("issued certificate failed verification: %w", err)
	}

	c.log.Info("device provisioned",
		slog.String("device_id", string(deviceID)),
		slog.String("state", c.registrar.State().String()))
	return cert, nil
}

// generateKeyMaterial runs the CPU-bound RSA generation off the calling
// goroutine so ctx cancellation is honoured.
func (c *Context) generateKeyMaterial(ctx context.Context, deviceID interfaces.DeviceID) (cryptoutils.PrivateKeyPEM, cryptoutils.TLSCSR, error) {
	type result struct {
		key cryptoutils.PrivateKeyPEM
		csr cryptoutils.TLSCSR
		err error
	}

	ch := make(chan result, 1)
	go func() {
		key, csr, err := cryptoutils.GenerateKeypairAndCSR(string(deviceID))
		ch <- result{key, csr, err}
	}()

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case res := <-ch:
		return res.key, res.csr, res.err
	}
}

// InstallCACertificate validates and stores the orchestrator's trust
// anchor.
func (c *Context) InstallCACertificate(ctx context.Context, pemData []byte) error {
	return c.registrar.InstallCACertificate(ctx, pemData)
}

// CACertificate returns the installed trust anchor, or
// interfaces.ErrSecretNotFound when none has been installed yet.
func (c *Context) CACertificate(ctx context.Context) (interfaces.CACert, error) {
	pemData, err := c.backend.Fetch(ctx, interfaces.SecretCACertificate)
	if err != nil {
		return nil, err
	}
	return interfaces.CACert(pemData), nil
}

// ClientTLS builds the best-effort outbound TLS configuration from
// whatever material is currently persisted.
func (c *Context) ClientTLS(ctx context.Context) (*tls.Config, error) {
	return c.tlsBuilder.ClientConfig(ctx)
}

// ServerTLS builds the inbound TLS configuration, or (nil, nil) when
// the certificate has not been issued yet.
func (c *Context) ServerTLS(ctx context.Context) (*tls.Config, error) {
	return c.tlsBuilder.ServerConfig(ctx)
}

// VerifyAPIKey implements auth.KeyVerifier.
func (c *Context) VerifyAPIKey(candidate string) bool {
	return c.identities.VerifyAPIKey(candidate)
}

// DeviceID returns the cached device identifier, or "" before
// EnsureCredentials has run.
func (c *Context) DeviceID() interfaces.DeviceID {
	return c.identities.DeviceID()
}

// APIKey returns the cached API key, or "" before EnsureCredentials has
// run.
func (c *Context) APIKey() interfaces.APIKey {
	return c.identities.APIKey()
}

// RegistrationState reports the state of the latest registration
// attempt.
func (c *Context) RegistrationState() interfaces.RegistrationState {
	return c.registrar.State()
}

// IsRegistered reports whether a device certificate is persisted and
// matches the stored private key.
func (c *Context) IsRegistered(ctx context.Context) bool {
	cfg, err := c.tlsBuilder.ServerConfig(ctx)
	if err != nil {
		if !errors.Is(err, interfaces.ErrSecretNotFound) {
			c.log.Warn("stored key material unusable", slog.Any("err", err))
		}
		return false
	}
	return cfg != nil
}

// TenantBinding returns the stored organization binding, or nil when
// the device has not been provisioned to a tenant.
func (c *Context) TenantBinding(ctx context.Context) (*interfaces.TenantBinding, error) {
	return c.tenants.Load(ctx)
}
