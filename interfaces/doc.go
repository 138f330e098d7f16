// Package interfaces defines core interfaces and types for the VM agent's
// security subsystem, separating interface definitions from implementations.
//
// The package provides the contracts between the leaf components of the
// agent without depending on any of them:
//
// # Identity
//
// IdentityStore: Persists and retrieves the durable (device ID, API key)
// identity pair, generating both lazily on first use.
//
// # Registration
//
// RegistrationProvider: Drives the bootstrap handshake against the
// orchestrator, exchanging a certificate signing request for a signed leaf
// certificate.
//
// # Secret Storage
//
// SecretBackend: Named-secret persistence used for identity material and
// certificate files across multiple backend types (file, Vault).
//
// SecretBackendFactory: Creates secret backends from URI strings.
//
// # Cryptographic Types
//
// The package re-exports the PEM-typed material from cryptoutils:
//
//   - TLSCSR: PEM-encoded PKCS#10 certificate signing request
//   - TLSCert: PEM-encoded leaf certificate
//   - CACert: PEM-encoded certificate authority certificate
//   - PrivateKeyPEM: PKCS#8 PEM-encoded private key
//
// # Error Types
//
// The package defines the error taxonomy of the security subsystem so that
// callers can distinguish "proceed by generating" from "abort, corrupt
// state" without matching on error strings:
//
//   - ErrSecretNotFound: Named secret absent from the backend
//   - ErrBackendUnavailable: Secret backend not accessible
//   - IdentityPersistenceError: Identity or key files cannot be written
//   - KeyGenerationError / CSRBuildError: Key material could not be produced
//   - RegistrationRejectedError: Orchestrator explicitly refused registration
//   - RegistrationNetworkError: Transient transport failure, safe to retry
//   - CertificateKeyMismatchError: Stored certificate and key do not pair
package interfaces
