package registration

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hoststack/vm-agent/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func provisioningToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("orchestrator-secret"))
	require.NoError(t, err)
	return token
}

func TestProvisionWithToken(t *testing.T) {
	backend := testBackend(t)
	manager := NewTenantManager(backend, testLogger())

	token := provisioningToken(t, jwt.MapClaims{
		"organization_id": "org-42",
		"plan":            "enterprise",
	})

	binding, err := manager.ProvisionWithToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, interfaces.OrganizationID("org-42"), binding.OrganizationID)
	assert.Equal(t, "token", binding.ProvisioningMode)
	assert.Equal(t, token, binding.ProvisioningToken)
	assert.NotEmpty(t, binding.ProvisionedAt)

	// Binding survives a restart.
	loaded, err := NewTenantManager(backend, testLogger()).Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, binding.OrganizationID, loaded.OrganizationID)
}

func TestProvisionWithToken_MissingOrganization(t *testing.T) {
	manager := NewTenantManager(testBackend(t), testLogger())

	token := provisioningToken(t, jwt.MapClaims{"plan": "starter"})

	_, err := manager.ProvisionWithToken(context.Background(), token)
	assert.Error(t, err)
	assert.False(t, manager.IsProvisioned(context.Background()))
}

func TestProvisionWithToken_Garbage(t *testing.T) {
	manager := NewTenantManager(testBackend(t), testLogger())

	_, err := manager.ProvisionWithToken(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func TestProvisionManual(t *testing.T) {
	backend := testBackend(t)
	manager := NewTenantManager(backend, testLogger())

	assert.False(t, manager.IsProvisioned(context.Background()))

	binding, err := manager.ProvisionManual(context.Background(), "org-7", map[string]any{"region": "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, "manual", binding.ProvisioningMode)
	assert.Empty(t, binding.ProvisioningToken)
	assert.True(t, manager.IsProvisioned(context.Background()))
}

func TestLoad_Unprovisioned(t *testing.T) {
	manager := NewTenantManager(testBackend(t), testLogger())

	binding, err := manager.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, binding)
}
