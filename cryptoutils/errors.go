package cryptoutils

import "fmt"

// KeyGenerationError indicates the RSA keypair could not be generated.
// This is fatal and not retried: it points at a broken environment rather
// than at anything a caller can recover from.
type KeyGenerationError struct {
	Err error
}

// Error returns the error message.
func (e *KeyGenerationError) Error() string {
	return fmt.Sprintf("key generation failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *KeyGenerationError) Unwrap() error { return e.Err }

// CSRBuildError indicates the certificate signing request could not be
// built or signed. Kept distinct from KeyGenerationError for diagnostics.
type CSRBuildError struct {
	Err error
}

// Error returns the error message.
func (e *CSRBuildError) Error() string {
	return fmt.Sprintf("csr build failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *CSRBuildError) Unwrap() error { return e.Err }

// CertificateKeyMismatchError indicates a certificate's public key does not
// correspond to the private key it is paired with on disk.
type CertificateKeyMismatchError struct {
	// CommonName is the subject common name of the offending certificate.
	CommonName string
}

// Error returns the error message.
func (e *CertificateKeyMismatchError) Error() string {
	return fmt.Sprintf("certificate for %s does not match the stored private key", e.CommonName)
}
