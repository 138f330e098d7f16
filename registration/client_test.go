package registration

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

func testBackend(t *testing.T) interfaces.SecretBackend {
	t.Helper()
	backend, err := secrets.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	return backend
}

// issueCert signs the CSR's subject into a throwaway self-signed
// certificate, standing in for the orchestrator's CA.
func issueCert(t *testing.T, csrPEM string) string {
	t.Helper()

	csr, err := interfaces.TLSCSR(csrPEM).GetX509CSR()
	require.NoError(t, err)

	keyPEM, _, err := cryptoutils.GenerateKeypairAndCSR(csr.Subject.CommonName)
	require.NoError(t, err)
	signerKey, err := keyPEM.GetRSAKey()
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: csr.Subject.CommonName},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(24 * time.Hour),
		DNSNames:     csr.DNSNames,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, csr.PublicKey, signerKey)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}))
}

func testRequest(t *testing.T) *interfaces.RegistrationRequest {
	t.Helper()
	_, csr, err := cryptoutils.GenerateKeypairAndCSR("vm-abc123def456")
	require.NoError(t, err)

	return BuildRequest(
		"vm-abc123def456",
		"test-api-key",
		csr,
		map[string]bool{"shell_executor": true, "file_manager": true},
		"provision-token",
	)
}

func TestRegister_Success(t *testing.T) {
	var received interfaces.RegistrationRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/agents/register", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		resp := interfaces.RegistrationResponse{Certificate: issueCert(t, received.CSR)}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	backend := testBackend(t)
	client := NewClient(server.URL, backend, testLogger())
	assert.Equal(t, interfaces.RegistrationUnregistered, client.State())

	cert, err := client.Register(context.Background(), testRequest(t))
	require.NoError(t, err)
	assert.Equal(t, interfaces.RegistrationSuccess, client.State())

	// Payload carried everything the orchestrator needs.
	assert.Equal(t, "vm-abc123def456", received.VMID)
	assert.Equal(t, "test-api-key", received.APIKey)
	assert.NotEmpty(t, received.Hostname)
	assert.NotEmpty(t, received.RegistrationTime)
	assert.Equal(t, "provision-token", received.ProvisioningToken)
	assert.True(t, received.Capabilities["shell_executor"])

	// Certificate was validated and persisted as vm.crt.
	require.NoError(t, cert.Validate())
	stored, err := backend.Fetch(context.Background(), interfaces.SecretCertificate)
	require.NoError(t, err)
	assert.Equal(t, []byte(cert), stored)
}

func TestRegister_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"invalid provisioning token"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testBackend(t), testLogger())

	_, err := client.Register(context.Background(), testRequest(t))
	require.Error(t, err)

	var rejected *interfaces.RegistrationRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusForbidden, rejected.StatusCode)
	assert.Contains(t, rejected.Body, "invalid provisioning token")
	assert.Equal(t, interfaces.RegistrationRejected, client.State())
}

func TestRegister_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, testBackend(t), testLogger())

	_, err := client.Register(context.Background(), testRequest(t))
	require.Error(t, err)

	var netErr *interfaces.RegistrationNetworkError
	assert.True(t, errors.As(err, &netErr))
	assert.Equal(t, interfaces.RegistrationNetworkFailed, client.State())
}

func TestRegister_MalformedCertificateIsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(interfaces.RegistrationResponse{Certificate: "not a pem"})
	}))
	defer server.Close()

	client := NewClient(server.URL, testBackend(t), testLogger())

	_, err := client.Register(context.Background(), testRequest(t))
	require.Error(t, err)

	var rejected *interfaces.RegistrationRejectedError
	assert.True(t, errors.As(err, &rejected))
}

func TestInstallCACertificate(t *testing.T) {
	backend := testBackend(t)
	client := NewClient("http://unused", backend, testLogger())

	err := client.InstallCACertificate(context.Background(), []byte("garbage"))
	assert.Error(t, err)

	_, err = backend.Fetch(context.Background(), interfaces.SecretCACertificate)
	assert.ErrorIs(t, err, interfaces.ErrSecretNotFound)
}
