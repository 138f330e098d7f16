// Package httpserver implements the agent's HTTP API.
//
// The server exposes a small surface:
//
//   - GET /health: liveness, public.
//   - GET /api/v1/ca-certificate: installed trust anchor, public, 404
//     until one is installed.
//   - GET /info: agent identity and registration state, authenticated.
//   - POST /api/v1/rpc: JSON-RPC 2.0 tool dispatch, authenticated.
//
// Authentication is the API key gate from api/auth. Operational
// endpoints (livez, readyz, drain, undrain) support rolling restarts
// behind a load balancer.
//
// The listener terminates TLS when a device certificate has been
// issued and falls back to cleartext before that. The fallback is
// intentional: a freshly installed agent must be reachable to complete
// registration.
package httpserver
