package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hoststack/vm-agent/interfaces"
)

// TenantManager persists the tenant/organization binding established at
// install time.
type TenantManager struct {
	backend interfaces.SecretBackend
	log     *slog.Logger
}

// NewTenantManager creates a tenant manager over the given secret backend.
func NewTenantManager(backend interfaces.SecretBackend, log *slog.Logger) *TenantManager {
	return &TenantManager{backend: backend, log: log}
}

// Load returns the stored tenant binding, or nil if the device has not
// been provisioned for a tenant yet.
func (m *TenantManager) Load(ctx context.Context) (*interfaces.TenantBinding, error) {
	data, err := m.backend.Fetch(ctx, interfaces.SecretTenantConfig)
	if errors.Is(err, interfaces.ErrSecretNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load tenant binding: %w", err)
	}

	var binding interfaces.TenantBinding
	if err := json.Unmarshal(data, &binding); err != nil {
		return nil, fmt.Errorf("tenant binding is corrupt: %w", err)
	}
	return &binding, nil
}

// Save persists a tenant binding.
func (m *TenantManager) Save(ctx context.Context, binding *interfaces.TenantBinding) error {
	data, err := json.MarshalIndent(binding, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tenant binding: %w", err)
	}
	if err := m.backend.Store(ctx, interfaces.SecretTenantConfig, data); err != nil {
		return &interfaces.IdentityPersistenceError{Name: interfaces.SecretTenantConfig.String(), Err: err}
	}
	m.log.Info("Tenant binding saved",
		slog.String("organizationID", binding.OrganizationID.String()),
		slog.String("mode", binding.ProvisioningMode))
	return nil
}

// ProvisionWithToken establishes a tenant binding from a provisioning
// token. The token is decoded without signature verification to extract
// the organization; the orchestrator performs the authoritative
// verification during registration.
func (m *TenantManager) ProvisionWithToken(ctx context.Context, token string) (*interfaces.TenantBinding, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("invalid provisioning token: %w", err)
	}

	orgID, _ := claims["organization_id"].(string)
	if orgID == "" {
		return nil, errors.New("provisioning token carries no organization_id")
	}

	binding := &interfaces.TenantBinding{
		OrganizationID:    interfaces.OrganizationID(orgID),
		ProvisioningToken: token,
		ProvisioningMode:  "token",
		ProvisionedAt:     time.Now().UTC(),
	}
	if metadata, ok := claims["metadata"].(map[string]any); ok {
		binding.Metadata = metadata
	}

	if err := m.Save(ctx, binding); err != nil {
		return nil, err
	}
	return binding, nil
}

// ProvisionManual establishes a tenant binding without a token, for
// operator-driven installs.
func (m *TenantManager) ProvisionManual(ctx context.Context, orgID interfaces.OrganizationID, metadata map[string]any) (*interfaces.TenantBinding, error) {
	if orgID == "" {
		return nil, errors.New("organization_id is required")
	}

	binding := &interfaces.TenantBinding{
		OrganizationID:   orgID,
		ProvisioningMode: "manual",
		ProvisionedAt:    time.Now().UTC(),
		Metadata:         metadata,
	}

	if err := m.Save(ctx, binding); err != nil {
		return nil, err
	}
	return binding, nil
}

// IsProvisioned reports whether a tenant binding exists.
func (m *TenantManager) IsProvisioned(ctx context.Context) bool {
	binding, err := m.Load(ctx)
	return err == nil && binding != nil && binding.OrganizationID != ""
}
