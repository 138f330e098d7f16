// Package client provides a typed HTTP client for the vm-agent API,
// used by operator tooling and orchestrator-side integrations.
package client

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hoststack/vm-agent/tools"
)

const defaultTimeout = 30 * time.Second

// Client talks to one agent instance. It bootstraps trust by fetching
// the agent's CA certificate over the public endpoint, then pins it for
// subsequent calls.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rpcID      atomic.Int64
}

// New creates a client for the agent at baseURL, authenticating with
// the device API key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Health checks the agent's public health endpoint.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Info returns the agent's identity and registration state.
func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, "/info", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CACertificate fetches the agent's trust anchor and verifies it
// parses.
func (c *Client) CACertificate(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/ca-certificate", nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request CA certificate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent returned status %d for CA certificate", resp.StatusCode)
	}

	pemData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, fmt.Errorf("agent returned unparseable CA certificate")
	}
	return pemData, nil
}

// ExecuteCommand runs a shell command on the agent.
func (c *Client) ExecuteCommand(ctx context.Context, command string, timeout time.Duration) (*tools.ExecResult, error) {
	params := map[string]any{"command": command}
	if timeout > 0 {
		params["timeout"] = int(timeout.Seconds())
	}

	var out tools.ExecResult
	if err := c.call(ctx, "execute_command", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadFile reads a file from the agent's host.
func (c *Client) ReadFile(ctx context.Context, path string) (*tools.FileContent, error) {
	var out tools.FileContent
	if err := c.call(ctx, "read_file", map[string]any{"file_path": path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WriteFile writes a file on the agent's host.
func (c *Client) WriteFile(ctx context.Context, path, content string) error {
	return c.call(ctx, "write_file", map[string]any{"file_path": path, "content": content}, nil)
}

// ListDirectory lists a directory on the agent's host.
func (c *Client) ListDirectory(ctx context.Context, path string) ([]tools.DirEntry, error) {
	var out []tools.DirEntry
	if err := c.call(ctx, "list_directory", map[string]any{"directory_path": path}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SystemMetrics fetches a host metrics snapshot.
func (c *Client) SystemMetrics(ctx context.Context) (*tools.SystemMetrics, error) {
	var out tools.SystemMetrics
	if err := c.call(ctx, "get_system_metrics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeLogFile summarizes a log file on the agent's host.
func (c *Client) AnalyzeLogFile(ctx context.Context, path string, lines int) (*tools.LogAnalysis, error) {
	params := map[string]any{"log_path": path, "lines": lines}
	var out tools.LogAnalysis
	if err := c.call(ctx, "analyze_log_file", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RPCError is a JSON-RPC error returned by the agent.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC request, decoding the result into out
// when out is non-nil.
func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.rpcID.Add(1),
		"method":  method,
	}
	if params != nil {
		payload["params"] = params
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/rpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not initialize rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("could not parse rpc response: %w", err)
	}
	if parsed.Error != nil {
		return parsed.Error
	}

	if out != nil {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("could not decode rpc result: %w", err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
