package cryptoutils

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"
)

// VerifyCertificate validates that a certificate matches a given private key
// and has the expected common name. It performs the following checks:
//   - The key and certificate can be parsed correctly
//   - The common name matches the expected value
//   - The public key in the certificate corresponds to the private key
//   - The certificate's validity window covers the current time
//
// A public-key mismatch is returned as *CertificateKeyMismatchError so
// callers can surface it distinctly from a generic TLS failure.
func VerifyCertificate(keyPEM PrivateKeyPEM, certPEM TLSCert, expectedCN string) error {
	privateKey, err := keyPEM.GetRSAKey()
	if err != nil {
		return err
	}

	cert, err := certPEM.GetX509Cert()
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	if cert.Subject.CommonName != expectedCN {
		return fmt.Errorf("CommonName is %s, expected %s", cert.Subject.CommonName, expectedCN)
	}

	certPublicKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return errors.New("unsupported certificate key type, expected RSA")
	}

	if !certPublicKey.Equal(privateKey.Public()) {
		return &CertificateKeyMismatchError{CommonName: cert.Subject.CommonName}
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate not valid before %s", cert.NotBefore)
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired at %s", cert.NotAfter)
	}

	return nil
}

// VerifyCertificateChain checks that a leaf certificate is signed by the
// given CA and that its validity window covers the current time.
func VerifyCertificateChain(certPEM TLSCert, caPEM CACert) error {
	cert, err := certPEM.GetX509Cert()
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	caCert, err := caPEM.GetX509Cert()
	if err != nil {
		return fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	if err := cert.CheckSignatureFrom(caCert); err != nil {
		return fmt.Errorf("certificate not signed by CA: %w", err)
	}

	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return fmt.Errorf("certificate outside validity window [%s, %s]", cert.NotBefore, cert.NotAfter)
	}

	return nil
}
