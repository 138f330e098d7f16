package interfaces

import (
	"context"
	"time"
)

// IdentityStore manages the durable (device ID, API key) pair.
//
// Both values are generated lazily on first use and reused verbatim on
// every restart; they are never silently regenerated while present in the
// backing store.
type IdentityStore interface {
	// GetOrCreateDeviceID returns the stored device ID, generating and
	// persisting a new one if absent.
	GetOrCreateDeviceID(ctx context.Context) (DeviceID, error)

	// GetOrCreateAPIKey returns the stored API key, generating and
	// persisting a new one if absent.
	GetOrCreateAPIKey(ctx context.Context) (APIKey, error)

	// LoadExisting reports whether both identity values were already
	// present and have been loaded. It performs no generation.
	LoadExisting(ctx context.Context) (bool, error)

	// VerifyAPIKey compares a candidate against the stored key in constant
	// time. Returns false, never an error, when no key material exists.
	VerifyAPIKey(candidate string) bool
}

// RegistrationState tracks the progress of a registration attempt.
type RegistrationState int

const (
	// RegistrationUnregistered is the initial state before any attempt.
	RegistrationUnregistered RegistrationState = iota

	// RegistrationSubmitting means a registration request is in flight.
	RegistrationSubmitting

	// RegistrationSuccess means a certificate was issued and persisted.
	RegistrationSuccess

	// RegistrationRejected means the orchestrator explicitly refused.
	RegistrationRejected

	// RegistrationNetworkFailed means the attempt failed in transport.
	RegistrationNetworkFailed
)

// String returns a human-readable state name.
func (s RegistrationState) String() string {
	switch s {
	case RegistrationUnregistered:
		return "unregistered"
	case RegistrationSubmitting:
		return "submitting"
	case RegistrationSuccess:
		return "success"
	case RegistrationRejected:
		return "rejected"
	case RegistrationNetworkFailed:
		return "network_error"
	default:
		return "unknown"
	}
}

// RegistrationRequest is the JSON payload submitted to the orchestrator's
// registration endpoint.
type RegistrationRequest struct {
	// VMID is the device identifier, used as the certificate common name.
	VMID string `json:"vm_id"`

	// APIKey is the device's bearer secret, registered with the orchestrator.
	APIKey string `json:"api_key"`

	// CSR is the PEM-encoded certificate signing request.
	CSR string `json:"csr"`

	// Hostname is the OS-reported host name.
	Hostname string `json:"hostname"`

	// RegistrationTime is the submission timestamp in RFC 3339 / ISO 8601.
	RegistrationTime string `json:"registration_time"`

	// AgentVersion is the running agent version.
	AgentVersion string `json:"agent_version"`

	// Capabilities declares which tools this agent exposes.
	Capabilities map[string]bool `json:"capabilities"`

	// ProvisioningToken is the short-lived JWT authorizing first contact.
	// Omitted when the device was provisioned manually.
	ProvisioningToken string `json:"provisioning_token,omitempty"`
}

// RegistrationResponse is the orchestrator's reply to a successful
// registration.
type RegistrationResponse struct {
	// Certificate is the signed PEM leaf certificate.
	Certificate string `json:"certificate"`
}

// RegistrationProvider submits a registration request and returns the
// issued leaf certificate.
type RegistrationProvider interface {
	// Register performs one registration attempt against the orchestrator.
	// Non-200 responses surface as *RegistrationRejectedError, transport
	// failures as *RegistrationNetworkError.
	Register(ctx context.Context, req *RegistrationRequest) (TLSCert, error)

	// State returns the state of the most recent registration attempt.
	State() RegistrationState
}

// TenantBinding is the organization binding consumed during registration.
type TenantBinding struct {
	// OrganizationID is the tenant this device belongs to.
	OrganizationID OrganizationID `json:"organization_id"`

	// ProvisioningToken is the JWT used during registration. Retained only
	// as an audit field after success.
	ProvisioningToken string `json:"provisioning_token,omitempty"`

	// ProvisioningMode records how the binding was established: "token" or "manual".
	ProvisioningMode string `json:"provisioning_mode"`

	// ProvisionedAt is when the binding was established.
	ProvisionedAt time.Time `json:"provisioned_at"`

	// Metadata carries optional free-form token metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}
