package mtls

import (
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hoststack/vm-agent/cryptoutils"
	"github.com/hoststack/vm-agent/interfaces"
)

// Forward-secret AEAD suites only. TLS 1.3 suites are not configurable
// in crypto/tls and are already limited to AEADs.
var allowedCipherSuites = []uint16{
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
}

// ContextBuilder derives TLS configurations from persisted key material.
// It holds no state of its own, so a fresh configuration picks up any
// material written since the last call.
type ContextBuilder struct {
	backend interfaces.SecretBackend
	log     *slog.Logger
}

func NewContextBuilder(backend interfaces.SecretBackend, log *slog.Logger) *ContextBuilder {
	return &ContextBuilder{backend: backend, log: log.With("component", "mtls")}
}

// ClientConfig builds the outbound TLS configuration. Missing material
// narrows the configuration instead of failing: without a CA anchor the
// system roots apply, without a cert/key pair no client certificate is
// presented.
func (b *ContextBuilder) ClientConfig(ctx context.Context) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: allowedCipherSuites,
	}

	pool, err := b.caPool(ctx)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		cfg.RootCAs = pool
	} else {
		b.log.Debug("no CA anchor installed, using system roots for outbound TLS")
	}

	pair, err := b.keyPair(ctx)
	if err != nil {
		return nil, err
	}
	if pair != nil {
		cfg.Certificates = []tls.Certificate{*pair}
	}

	return cfg, nil
}

// ServerConfig builds the inbound TLS configuration. It returns (nil, nil)
// when the certificate or key is missing, signalling the caller to serve
// cleartext. Unreadable or mismatched material is an error.
func (b *ContextBuilder) ServerConfig(ctx context.Context) (*tls.Config, error) {
	pair, err := b.keyPair(ctx)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		b.log.Info("certificate or key not yet issued, TLS termination disabled")
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: allowedCipherSuites,
		Certificates: []tls.Certificate{*pair},
	}

	pool, err := b.caPool(ctx)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}

	return cfg, nil
}

// caPool loads the installed CA anchor, or nil when none is installed.
func (b *ContextBuilder) caPool(ctx context.Context) (*x509.CertPool, error) {
	pemData, err := b.backend.Fetch(ctx, interfaces.SecretCACertificate)
	if errors.Is(err, interfaces.ErrSecretNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, fmt.Errorf("stored CA certificate contains no parseable certificates")
	}
	return pool, nil
}

// keyPair loads the device certificate and private key, or nil when
// either is absent. A certificate whose public key does not match the
// private key is reported as *cryptoutils.CertificateKeyMismatchError.
func (b *ContextBuilder) keyPair(ctx context.Context) (*tls.Certificate, error) {
	certPEM, err := b.backend.Fetch(ctx, interfaces.SecretCertificate)
	if errors.Is(err, interfaces.ErrSecretNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read device certificate: %w", err)
	}

	keyPEM, err := b.backend.Fetch(ctx, interfaces.SecretPrivateKey)
	if errors.Is(err, interfaces.ErrSecretNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read private key: %w", err)
	}

	leaf, err := interfaces.TLSCert(certPEM).GetX509Cert()
	if err != nil {
		return nil, fmt.Errorf("stored device certificate is invalid: %w", err)
	}

	key, err := cryptoutils.PrivateKeyPEM(keyPEM).GetRSAKey()
	if err != nil {
		return nil, fmt.Errorf("stored private key is invalid: %w", err)
	}

	pub, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(key.Public()) {
		return nil, &cryptoutils.CertificateKeyMismatchError{CommonName: leaf.Subject.CommonName}
	}

	return &tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}
