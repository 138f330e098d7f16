// Package mtls assembles TLS configurations from the agent's persisted
// key material.
//
// The builder reads the CA trust anchor, the device certificate and the
// private key from the secret backend and produces configurations for
// both directions:
//
//   - ClientConfig is best effort. Early-boot calls happen before any
//     certificate exists, so missing material narrows the configuration
//     instead of failing. With a CA anchor present it becomes the trust
//     root; with a cert/key pair present the client presents it.
//   - ServerConfig requires both the certificate and the key. When either
//     is missing it reports no configuration rather than an error, and
//     the HTTP server serves cleartext until registration completes.
//     This fallback is an operational choice and must be preserved.
//
// Negotiated cipher suites are restricted to forward-secret AEAD suites
// (ECDHE with AES-GCM or ChaCha20-Poly1305) at TLS 1.2 and above.
//
// A certificate whose public key does not correspond to the private key
// surfaces as *cryptoutils.CertificateKeyMismatchError so operators can
// tell a material problem apart from a handshake failure.
package mtls
