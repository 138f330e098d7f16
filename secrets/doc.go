// Package secrets implements named-secret persistence backends for the VM
// agent's security directory.
//
// The security subsystem stores a small fixed set of named secrets (device
// ID, API key, private key, CSR, certificates, tenant binding). This
// package provides the storage substrate beneath the identity store and
// the registration flow:
//
//   - FileBackend: flat files under a directory, written atomically
//     (temp file + rename) with the per-name permissions applied before any
//     content becomes observable
//   - VaultBackend: HashiCorp Vault KV v2, for hosts where local disk is
//     not trusted with long-lived secrets
//
// BackendFactory creates backends from location URIs:
//
//	file:///opt/vm-agent/security
//	vault://vault.example.com:8200/secret/vm-agents
//
// All backends report a missing secret as interfaces.ErrSecretNotFound so
// callers can distinguish "absent, generate" from an unavailable backend.
package secrets
