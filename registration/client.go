package registration

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hoststack/vm-agent/common"
	"github.com/hoststack/vm-agent/cryptoutils"
	"github.com/hoststack/vm-agent/interfaces"
	"github.com/hoststack/vm-agent/metrics"
)

// registerPath is the orchestrator's agent registration endpoint.
const registerPath = "/api/v1/agents/register"

// defaultTimeout bounds a single registration attempt. Distinct from tool
// execution timeouts.
const defaultTimeout = 30 * time.Second

// Client submits registration requests to the orchestrator and persists
// the issued certificate. It implements interfaces.RegistrationProvider.
type Client struct {
	orchestratorURL string
	backend         interfaces.SecretBackend
	httpClient      *http.Client
	log             *slog.Logger

	mu    sync.Mutex
	state interfaces.RegistrationState
}

// NewClient creates a registration client for the given orchestrator base
// URL. Issued certificates and installed CA material are persisted through
// the secret backend.
func NewClient(orchestratorURL string, backend interfaces.SecretBackend, log *slog.Logger) *Client {
	return &Client{
		orchestratorURL: orchestratorURL,
		backend:         backend,
		log:             log,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				// Bootstrap only: the orchestrator's certificate may not be
				// trusted before the CA has been installed.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		state: interfaces.RegistrationUnregistered,
	}
}

// Register performs one registration attempt. On HTTP 200 the returned
// certificate is validated and persisted before SUCCESS is reported. A
// non-200 response yields *RegistrationRejectedError; transport failures
// yield *RegistrationNetworkError. The client never retries internally.
func (c *Client) Register(ctx context.Context, req *interfaces.RegistrationRequest) (interfaces.TLSCert, error) {
	c.setState(interfaces.RegistrationSubmitting)

	body, err := json.Marshal(req)
	if err != nil {
		c.setState(interfaces.RegistrationUnregistered)
		return nil, fmt.Errorf("could not encode registration request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.orchestratorURL+registerPath, bytes.NewReader(body))
	if err != nil {
		c.setState(interfaces.RegistrationUnregistered)
		return nil, fmt.Errorf("could not initialize registration request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.setState(interfaces.RegistrationNetworkFailed)
		metrics.RegistrationAttempts.WithLabelValues("network_error").Inc()
		return nil, &interfaces.RegistrationNetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.setState(interfaces.RegistrationRejected)
		metrics.RegistrationAttempts.WithLabelValues("rejected").Inc()
		c.log.Warn("Registration rejected by orchestrator",
			slog.Int("status", resp.StatusCode),
			slog.String("deviceID", req.VMID))
		return nil, &interfaces.RegistrationRejectedError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed interfaces.RegistrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.setState(interfaces.RegistrationNetworkFailed)
		return nil, &interfaces.RegistrationNetworkError{Err: fmt.Errorf("could not parse registration response: %w", err)}
	}

	cert := interfaces.TLSCert(parsed.Certificate)
	if err := cert.Validate(); err != nil {
		c.setState(interfaces.RegistrationRejected)
		return nil, &interfaces.RegistrationRejectedError{
			StatusCode: resp.StatusCode,
			Body:       fmt.Sprintf("orchestrator returned malformed certificate: %v", err),
		}
	}

	if storeErr := c.backend.Store(ctx, interfaces.SecretCertificate, []byte(parsed.Certificate)); storeErr != nil {
		c.setState(interfaces.RegistrationUnregistered)
		return nil, &interfaces.IdentityPersistenceError{Name: interfaces.SecretCertificate.String(), Err: storeErr}
	}

	c.setState(interfaces.RegistrationSuccess)
	metrics.RegistrationAttempts.WithLabelValues("success").Inc()
	metrics.Registered.Set(1)
	c.log.Info("Registration succeeded, certificate installed",
		slog.String("deviceID", req.VMID))

	return cert, nil
}

// InstallCACertificate validates and persists the orchestrator's CA trust
// anchor.
func (c *Client) InstallCACertificate(ctx context.Context, pemData []byte) error {
	ca, err := cryptoutils.NewCACert(pemData)
	if err != nil {
		return err
	}
	if err := c.backend.Store(ctx, interfaces.SecretCACertificate, ca); err != nil {
		return &interfaces.IdentityPersistenceError{Name: interfaces.SecretCACertificate.String(), Err: err}
	}
	c.log.Info("CA certificate installed")
	return nil
}

// State returns the state of the most recent registration attempt.
func (c *Client) State() interfaces.RegistrationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(state interfaces.RegistrationState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// BuildRequest assembles the registration payload for this host.
func BuildRequest(deviceID interfaces.DeviceID, apiKey interfaces.APIKey, csr interfaces.TLSCSR, capabilities map[string]bool, provisioningToken string) *interfaces.RegistrationRequest {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &interfaces.RegistrationRequest{
		VMID:              deviceID.String(),
		APIKey:            apiKey.String(),
		CSR:               string(csr),
		Hostname:          hostname,
		RegistrationTime:  time.Now().UTC().Format(time.RFC3339),
		AgentVersion:      common.Version,
		Capabilities:      capabilities,
		ProvisioningToken: provisioningToken,
	}
}
