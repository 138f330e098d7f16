// Package wscommand maintains the agent's outbound command channel.
//
// The agent dials a WebSocket endpoint on the orchestrator and executes
// tool commands pushed over it, so operators can reach agents behind
// NAT without an inbound connection. The channel authenticates with the
// device API key, uses the best-effort client TLS configuration and
// reconnects with exponential backoff.
package wscommand

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hoststack/vm-agent/metrics"
	"github.com/hoststack/vm-agent/security"
	"github.com/hoststack/vm-agent/tools"
)

const (
	commandPath = "/api/v1/agents/commands"

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
	pongWait         = 60 * time.Second

	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Command is one instruction pushed by the orchestrator.
type Command struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response reports the outcome of one command.
type Response struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Channel is the reconnecting command connection.
type Channel struct {
	orchestratorURL string
	sec             *security.Context
	registry        *tools.Registry
	log             *slog.Logger
}

func NewChannel(orchestratorURL string, sec *security.Context, registry *tools.Registry, log *slog.Logger) *Channel {
	return &Channel{
		orchestratorURL: orchestratorURL,
		sec:             sec,
		registry:        registry,
		log:             log.With("component", "wscommand"),
	}
}

// Run connects and serves commands until ctx is cancelled, redialing
// with exponential backoff after every disconnect.
func (c *Channel) Run(ctx context.Context) {
	delay := initialReconnectDelay

	for {
		if err := c.connectAndServe(ctx); err != nil {
			c.log.Warn("command channel disconnected", slog.Any("err", err))
		}
		metrics.CommandChannelConnected.Set(0)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *Channel) connectAndServe(ctx context.Context) error {
	tlsCfg, err := c.sec.ClientTLS(ctx)
	if err != nil {
		return fmt.Errorf("could not build client TLS configuration: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		TLSClientConfig:  tlsCfg,
	}

	headers := map[string][]string{
		"X-API-Key":   {c.sec.APIKey().String()},
		"X-Device-ID": {c.sec.DeviceID().String()},
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint(), headers)
	if err != nil {
		return fmt.Errorf("could not dial orchestrator: %w", err)
	}
	defer conn.Close()

	metrics.CommandChannelConnected.Set(1)
	c.log.Info("command channel connected", slog.String("url", c.endpoint()))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// All frames go out through writePump. Commands execute on their
	// own goroutines so a slow tool never stalls pong processing.
	send := make(chan Response, 16)
	go c.writePump(connCtx, conn, send)

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return err
		}
		go c.handle(connCtx, &cmd, send)
	}
}

func (c *Channel) handle(ctx context.Context, cmd *Command, send chan<- Response) {
	c.log.Info("executing pushed command",
		slog.String("id", cmd.ID),
		slog.String("method", cmd.Method))

	resp := Response{ID: cmd.ID}
	result, err := c.registry.Call(ctx, cmd.Method, cmd.Params)
	if err != nil {
		resp.Error = err.Error()
		metrics.CommandsExecuted.WithLabelValues("error").Inc()
	} else {
		resp.Success = true
		resp.Result = result
		metrics.CommandsExecuted.WithLabelValues("success").Inc()
	}

	select {
	case send <- resp:
	case <-ctx.Done():
	}
}

// writePump is the connection's single writer. It serializes command
// responses and keepalive pings onto the socket.
func (c *Channel) writePump(ctx context.Context, conn *websocket.Conn, send <-chan Response) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(resp); err != nil {
				c.log.Warn("could not send command response",
					slog.String("id", resp.ID),
					slog.Any("err", err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// endpoint translates the orchestrator's HTTP base URL to the ws/wss
// command endpoint.
func (c *Channel) endpoint() string {
	url := c.orchestratorURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + commandPath
}
