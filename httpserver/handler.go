package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hoststack/vm-agent/common"
	"github.com/hoststack/vm-agent/interfaces"
	"github.com/hoststack/vm-agent/metrics"
	"github.com/hoststack/vm-agent/security"
	"github.com/hoststack/vm-agent/tools"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInternalError  = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Handler processes API requests, delegating tool calls to the
// registry and credential queries to the security context.
type Handler struct {
	sec      *security.Context
	registry *tools.Registry
	log      *slog.Logger
}

func NewHandler(sec *security.Context, registry *tools.Registry, log *slog.Logger) *Handler {
	return &Handler{sec: sec, registry: registry, log: log}
}

// HandleHealth reports liveness. Public.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": common.Version,
	})
}

// HandleInfo reports the agent's identity and registration state.
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"device_id":          h.sec.DeviceID().String(),
		"agent_version":      common.Version,
		"registered":         h.sec.IsRegistered(r.Context()),
		"registration_state": h.sec.RegistrationState().String(),
		"capabilities":       h.registry.Capabilities(),
	}

	if binding, err := h.sec.TenantBinding(r.Context()); err == nil && binding != nil {
		info["organization_id"] = binding.OrganizationID
	}

	writeJSON(w, http.StatusOK, info)
}

// HandleCACertificate serves the installed trust anchor. Public, so
// clients can bootstrap their trust store, 404 until one is installed.
func (h *Handler) HandleCACertificate(w http.ResponseWriter, r *http.Request) {
	ca, err := h.sec.CACertificate(r.Context())
	if errors.Is(err, interfaces.ErrSecretNotFound) {
		http.Error(w, "No CA certificate installed", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("could not read CA certificate", slog.Any("err", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Write(ca)
}

// HandleRPC dispatches a JSON-RPC 2.0 call to the tool registry.
func (h *Handler) HandleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeRPCError(w, nil, rpcParseError, "could not read request body")
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, nil, rpcParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCError(w, req.ID, rpcInvalidRequest, "not a JSON-RPC 2.0 request")
		return
	}

	start := time.Now()
	result, err := h.registry.Call(r.Context(), req.Method, req.Params)
	metrics.RPCDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	if err != nil {
		var unknown *tools.UnknownMethodError
		code := rpcInternalError
		if errors.As(err, &unknown) {
			code = rpcMethodNotFound
		}
		metrics.RPCCallsTotal.WithLabelValues(req.Method, "error").Inc()
		h.log.Warn("rpc call failed",
			slog.String("method", req.Method),
			slog.Any("err", err))
		writeRPCError(w, req.ID, code, err.Error())
		return
	}

	metrics.RPCCallsTotal.WithLabelValues(req.Method, "success").Inc()
	writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	})
}
