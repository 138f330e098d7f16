// Package cryptoutils provides the cryptographic operations behind the VM
// agent's device identity: keypair and CSR generation, certificate/key
// consistency checks, and an optional payload encryption envelope.
//
// # Key Material
//
// GenerateKeypairAndCSR creates a fresh 2048-bit RSA key in PKCS#8 PEM form
// together with a PKCS#10 certificate signing request whose subject common
// name and SAN DNS entry are both the device ID. A fresh key is generated
// on every call: rotating the key on every (re-)registration limits the
// exposure of a compromised key.
//
// # Certificate Verification
//
// VerifyCertificate validates that a leaf certificate matches a private key
// and carries the expected common name, and that its validity window covers
// the current time. A public-key mismatch is reported as
// *CertificateKeyMismatchError so operators can tell a corrupt on-disk pair
// from a transient TLS failure.
//
// # Payload Encryption
//
// PayloadCipher implements an end-to-end envelope for sensitive data
// exchanged outside the TLS channel:
//
//   - Fresh 256-bit AES key and 128-bit IV per message, never reused
//   - AES-CBC with PKCS#7-style padding; a full pad block is added when the
//     plaintext is already block-aligned
//   - The AES key is either wrapped with RSA-OAEP (SHA-256) for a named
//     recipient, or referenced by a key_id fingerprint
//     (first 16 hex characters of SHA-256(key)) for pre-shared delivery
//
// Decrypt reverses the scheme exactly. The envelope is a simplification
// for a trusted-orchestrator deployment, not a general-purpose scheme.
package cryptoutils
