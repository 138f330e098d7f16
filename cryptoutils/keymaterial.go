package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
)

const (
	// rsaKeyBits is the modulus size for device keys.
	rsaKeyBits = 2048

	// csrOrganization is the fixed O= attribute of every device CSR.
	csrOrganization = "VM-Agent"
)

// GenerateKeypairAndCSR generates a fresh 2048-bit RSA key pair and creates
// a Certificate Signing Request bound to the given device ID.
//
// The CSR subject is CN=<deviceID>, O=VM-Agent with a single SAN DNS entry
// equal to the device ID. A new key is generated on every call; keys are
// never reused across CSR regeneration.
//
// Returns:
//   - Private key in PKCS#8 PEM format
//   - CSR in PEM format
//   - *KeyGenerationError or *CSRBuildError on failure
func GenerateKeypairAndCSR(deviceID string) (PrivateKeyPEM, TLSCSR, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, nil, &KeyGenerationError{Err: err}
	}

	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, &KeyGenerationError{Err: err}
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateKeyBytes})

	csrTemplate := x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName:   deviceID,
			Organization: []string{csrOrganization},
		},
		DNSNames:           []string{deviceID},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &csrTemplate, privateKey)
	if err != nil {
		return nil, nil, &CSRBuildError{Err: err}
	}

	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})
	return PrivateKeyPEM(keyPEM), TLSCSR(csrPEM), nil
}
