package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticVerifier string

func (v staticVerifier) VerifyAPIKey(candidate string) bool {
	want := sha256.Sum256([]byte(v))
	got := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

func gate(t *testing.T) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return Middleware(staticVerifier("valid-key"), log)(inner)
}

func get(t *testing.T, handler http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPublicPathsSkipAuth(t *testing.T) {
	handler := gate(t)

	for _, path := range []string{"/health", "/api/v1/ca-certificate"} {
		rec := get(t, handler, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAPIKeyHeader(t *testing.T) {
	rec := get(t, gate(t), "/api/v1/rpc", map[string]string{"X-API-Key": "valid-key"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerToken(t *testing.T) {
	rec := get(t, gate(t), "/api/v1/rpc", map[string]string{"Authorization": "Bearer valid-key"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHeaderTakesPrecedenceOverBearer(t *testing.T) {
	rec := get(t, gate(t), "/api/v1/rpc", map[string]string{
		"X-API-Key":     "valid-key",
		"Authorization": "Bearer wrong",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRejections(t *testing.T) {
	handler := gate(t)

	cases := map[string]map[string]string{
		"no credentials":   nil,
		"wrong key":        {"X-API-Key": "wrong"},
		"wrong bearer":     {"Authorization": "Bearer wrong"},
		"malformed bearer": {"Authorization": "valid-key"},
		"empty key header": {"X-API-Key": ""},
		"truncated key":    {"X-API-Key": "valid-ke"},
	}

	for name, headers := range cases {
		rec := get(t, handler, "/api/v1/rpc", headers)
		require.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String(), name)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), name)
	}
}

func TestInfoRequiresAuth(t *testing.T) {
	rec := get(t, gate(t), "/info", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
