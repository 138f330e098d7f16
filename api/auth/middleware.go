// Package auth gates inbound requests on the device API key.
//
// Every request outside a small public allowlist must carry the key,
// either in the X-API-Key header or as an Authorization bearer token.
// Verification is delegated to the identity store's constant-time
// comparison. Failures get a uniform 401 with no detail about whether
// the key was missing, malformed or wrong.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hoststack/vm-agent/metrics"
)

// KeyVerifier checks a candidate API key. Implemented by the identity
// store.
type KeyVerifier interface {
	VerifyAPIKey(candidate string) bool
}

// Paths reachable without a key: liveness probes and the trust anchor
// download needed before a client can authenticate at all.
var publicPaths = map[string]struct{}{
	"/health":                {},
	"/api/v1/ca-certificate": {},
}

// Middleware returns a handler wrapper enforcing API key auth.
func Middleware(verifier KeyVerifier, log *slog.Logger) func(http.Handler) http.Handler {
	log = log.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := publicPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if !verifier.VerifyAPIKey(extractKey(r)) {
				metrics.AuthDenials.Inc()
				log.Warn("rejected unauthenticated request",
					slog.String("path", r.URL.Path),
					slog.String("remote", r.RemoteAddr))
				deny(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractKey pulls the candidate key from X-API-Key, falling back to an
// Authorization bearer token. Returns "" when neither is present, which
// the verifier rejects.
func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	authz := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return token
	}
	return ""
}

func deny(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"Unauthorized"}`))
}
