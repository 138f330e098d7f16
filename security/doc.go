// Package security ties the agent's credential lifecycle together.
//
// A Context owns the identity store, the key material, the registration
// client and the TLS builder, and exposes the two operations callers
// actually run:
//
//   - EnsureCredentials establishes a durable device identity and API
//     key. It must complete before any listener starts, so the auth
//     middleware always has a key to verify against.
//   - Provision performs a full (re-)registration: a fresh RSA key and
//     CSR are generated and persisted, the CSR is submitted to the
//     orchestrator, the issued certificate is verified against the key
//     and stored. Re-provisioning an already registered device repeats
//     the whole flow with new key material.
//
// The context is an explicit dependency passed to whoever needs it.
// There is no package-level singleton.
package security
