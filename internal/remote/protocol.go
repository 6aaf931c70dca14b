package remote

import (
	"encoding/json"

	"parley/internal/message"
)

// JSON-RPC 2.0 envelope for the remote agent protocol.

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"` // Always "2.0"
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"` // Always "2.0"
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Remote agent methods
const (
	MethodInitialize = "initialize"
	MethodObserve    = "agent/observe"
	MethodAct        = "agent/act"
	MethodReset      = "agent/reset"
)

// InitializeParams announces the client and the saved model it was created from.
type InitializeParams struct {
	ClientName string `json:"clientName"`
	ModelFile  string `json:"modelFile,omitempty"`
}

// InitializeResult names the remote agent.
type InitializeResult struct {
	AgentID string `json:"agentId"`
}

// ObserveParams carries one observation.
type ObserveParams struct {
	Message message.Message `json:"message"`
}

// ActResult carries the remote agent's reply.
type ActResult struct {
	Message message.Message `json:"message"`
}

func newRequest(id int, method string, params any) (JSONRPCRequest, error) {
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return req, err
		}
		req.Params = raw
	}
	return req, nil
}
