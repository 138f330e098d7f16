package interfaces

import (
	"errors"
	"fmt"

	"github.com/hoststack/vm-agent/cryptoutils"
)

// Cryptographic error types are produced by the cryptoutils leaf package
// and re-exported here alongside the rest of the taxonomy.
type KeyGenerationError = cryptoutils.KeyGenerationError
type CSRBuildError = cryptoutils.CSRBuildError
type CertificateKeyMismatchError = cryptoutils.CertificateKeyMismatchError

var (
	// ErrSecretNotFound is returned when a named secret cannot be found in
	// the secret backend. Callers treat this as "absent, proceed by
	// generating" rather than as a failure.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrBackendUnavailable is returned when a secret backend is not accessible.
	ErrBackendUnavailable = errors.New("secret backend unavailable")

	// ErrInvalidLocationURI is returned when a secret backend location URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid secret backend location URI")
)

// IdentityPersistenceError indicates that identity or key material could not
// be written to (or read back from) durable storage. It is fatal to the
// startup path.
type IdentityPersistenceError struct {
	// Name is the secret name that failed to persist.
	Name string

	// Err is the underlying error.
	Err error
}

// Error returns the error message.
func (e *IdentityPersistenceError) Error() string {
	return fmt.Sprintf("identity persistence failed for %s: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *IdentityPersistenceError) Unwrap() error { return e.Err }

// RegistrationRejectedError indicates the orchestrator explicitly refused
// the registration (bad token, policy denial). Not safe to retry without
// operator action.
type RegistrationRejectedError struct {
	// StatusCode is the HTTP status returned by the orchestrator.
	StatusCode int

	// Body is the orchestrator's response body, surfaced as error detail.
	Body string
}

// Error returns the error message.
func (e *RegistrationRejectedError) Error() string {
	return fmt.Sprintf("registration rejected with status %d: %s", e.StatusCode, e.Body)
}

// RegistrationNetworkError indicates a transient transport failure (DNS,
// connect, timeout) during registration. Safe to retry with backoff.
type RegistrationNetworkError struct {
	Err error
}

// Error returns the error message.
func (e *RegistrationNetworkError) Error() string {
	return fmt.Sprintf("registration network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RegistrationNetworkError) Unwrap() error { return e.Err }
