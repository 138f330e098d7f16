// Package registration drives the bootstrap handshake between the VM agent
// and its orchestrator.
//
// The agent submits its device identity and a certificate signing request,
// optionally accompanied by a short-lived provisioning token, and receives
// a signed leaf certificate in return. Each attempt moves through the
// states UNREGISTERED -> SUBMITTING -> (SUCCESS | REJECTED | NETWORK_ERROR).
//
// The bootstrap call is made without mTLS: no certificate exists yet, so
// authentication rests on the bearer API key and the provisioning token.
// TLS certificate verification is relaxed for this one call because the
// orchestrator's certificate may not be trusted yet. This is a known
// bootstrap weakness, not a model for subsequent calls; every later
// connection uses the full mTLS context.
//
// Rejections and transport failures surface as distinct error types so a
// caller can retry network errors with backoff while failing fast on an
// explicit refusal. Retry policy itself belongs to the caller.
//
// The package also manages the tenant binding: the organization identity
// and provisioning token recorded at install time, kept only as an audit
// field after a successful registration.
package registration
