package security

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hoststack/vm-agent/cryptoutils"
	"github.com/hoststack/vm-agent/interfaces"
	"github.com/hoststack/vm-agent/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testCapabilities = map[string]bool{"shell_executor": true}

// fakeOrchestrator signs whatever CSR arrives with a throwaway key.
func fakeOrchestrator(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req interfaces.RegistrationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		csr, err := interfaces.TLSCSR(req.CSR).GetX509CSR()
		require.NoError(t, err)

		signerPEM, _, err := cryptoutils.GenerateKeypairAndCSR(csr.Subject.CommonName)
		require.NoError(t, err)
		signer, err := signerPEM.GetRSAKey()
		require.NoError(t, err)

		template := &x509.Certificate{
			SerialNumber: big.NewInt(time.Now().UnixNano()),
			Subject:      pkix.Name{CommonName: csr.Subject.CommonName},
			NotBefore:    time.Now().Add(-time.Minute),
			NotAfter:     time.Now().Add(24 * time.Hour),
			DNSNames:     csr.DNSNames,
		}
		der, err := x509.CreateCertificate(rand.Reader, template, template, csr.PublicKey, signer)
		require.NoError(t, err)

		json.NewEncoder(w).Encode(interfaces.RegistrationResponse{
			Certificate: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		})
	}))
}

func newTestContext(t *testing.T, dir, orchestratorURL string) *Context {
	t.Helper()
	backend, err := secrets.NewFileBackend(dir, testLogger())
	require.NoError(t, err)
	return NewContext(backend, orchestratorURL, testCapabilities, testLogger())
}

func TestEnsureCredentials(t *testing.T) {
	dir := t.TempDir()
	sec := newTestContext(t, dir, "http://unused")

	require.NoError(t, sec.EnsureCredentials(context.Background()))
	deviceID := sec.DeviceID()
	apiKey := sec.APIKey()
	assert.Regexp(t, `^vm-[0-9a-f]{12}$`, string(deviceID))
	assert.NotEmpty(t, apiKey)

	// Secrets landed on disk with owner-only mode for the key.
	info, err := os.Stat(filepath.Join(dir, "api.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A second context over the same directory loads, not regenerates.
	again := newTestContext(t, dir, "http://unused")
	require.NoError(t, again.EnsureCredentials(context.Background()))
	assert.Equal(t, deviceID, again.DeviceID())
	assert.Equal(t, apiKey, again.APIKey())
}

func TestProvision(t *testing.T) {
	orchestrator := fakeOrchestrator(t)
	defer orchestrator.Close()

	dir := t.TempDir()
	sec := newTestContext(t, dir, orchestrator.URL)
	assert.False(t, sec.IsRegistered(context.Background()))

	cert, err := sec.Provision(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, cert.Validate())
	assert.Equal(t, interfaces.RegistrationSuccess, sec.RegistrationState())
	assert.True(t, sec.IsRegistered(context.Background()))

	// Key, CSR and certificate all persisted.
	for _, name := range []string{"vm.key", "vm.csr", "vm.crt"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	// ServerTLS is now live.
	cfg, err := sec.ServerTLS(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Issued certificate is bound to the device identity.
	leaf, err := cert.GetX509Cert()
	require.NoError(t, err)
	assert.Equal(t, string(sec.DeviceID()), leaf.Subject.CommonName)
}

func TestProvision_ReprovisionRotatesKey(t *testing.T) {
	orchestrator := fakeOrchestrator(t)
	defer orchestrator.Close()

	dir := t.TempDir()
	sec := newTestContext(t, dir, orchestrator.URL)

	_, err := sec.Provision(context.Background(), "")
	require.NoError(t, err)
	firstKey, err := os.ReadFile(filepath.Join(dir, "vm.key"))
	require.NoError(t, err)

	_, err = sec.Provision(context.Background(), "")
	require.NoError(t, err)
	secondKey, err := os.ReadFile(filepath.Join(dir, "vm.key"))
	require.NoError(t, err)

	assert.NotEqual(t, firstKey, secondKey)
	assert.True(t, sec.IsRegistered(context.Background()))
}

func TestProvision_Rejected(t *testing.T) {
	orchestrator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unknown tenant"}`, http.StatusForbidden)
	}))
	defer orchestrator.Close()

	sec := newTestContext(t, t.TempDir(), orchestrator.URL)

	_, err := sec.Provision(context.Background(), "")
	require.Error(t, err)

	var rejected *interfaces.RegistrationRejectedError
	assert.True(t, errors.As(err, &rejected))
	assert.Equal(t, interfaces.RegistrationRejected, sec.RegistrationState())
	assert.False(t, sec.IsRegistered(context.Background()))
}

func TestProvision_CancelledContext(t *testing.T) {
	sec := newTestContext(t, t.TempDir(), "http://unused")
	require.NoError(t, sec.EnsureCredentials(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sec.Provision(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCACertificateLifecycle(t *testing.T) {
	sec := newTestContext(t, t.TempDir(), "http://unused")

	_, err := sec.CACertificate(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrSecretNotFound)
}
