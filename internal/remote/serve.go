package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"parley/internal/message"
)

// Handler is the agent side of the protocol.
type Handler interface {
	ID() string
	Observe(msg message.Message)
	Act(ctx context.Context) (message.Message, error)
	Reset()
}

// dispatch executes one request against h.
func dispatch(ctx context.Context, h Handler, req JSONRPCRequest) JSONRPCResponse {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID}
	var result any
	switch req.Method {
	case MethodInitialize:
		result = InitializeResult{AgentID: h.ID()}
	case MethodObserve:
		var p ObserveParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = &RPCError{Code: CodeInvalidParams, Message: err.Error()}
			return resp
		}
		h.Observe(p.Message)
		result = struct{}{}
	case MethodAct:
		msg, err := h.Act(ctx)
		if err != nil {
			resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
			return resp
		}
		if msg.ID == "" {
			msg.ID = h.ID()
		}
		result = ActResult{Message: msg}
	case MethodReset:
		h.Reset()
		result = struct{}{}
	default:
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
		return resp
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
		return resp
	}
	resp.Result = raw
	return resp
}

// ServeStdio answers line-delimited requests from r on w until r is exhausted.
func ServeStdio(ctx context.Context, h Handler, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(w)
	for scanner.Scan() {
		var req JSONRPCRequest
		var resp JSONRPCResponse
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp = JSONRPCResponse{JSONRPC: "2.0", Error: &RPCError{Code: CodeParseError, Message: err.Error()}}
		} else {
			resp = dispatch(ctx, h, req)
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

// WebSocketHandler serves one agent per websocket connection, created by
// newHandler. Agents with a Shutdown method are shut down when their
// connection ends.
func WebSocketHandler(newHandler func() (Handler, error), logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, err := newHandler()
		if err != nil {
			logger.Error("failed to create agent for connection", "error", err)
			http.Error(w, "agent unavailable", http.StatusServiceUnavailable)
			return
		}
		if s, ok := h.(interface{ Shutdown() error }); ok {
			defer func() {
				if err := s.Shutdown(); err != nil {
					logger.Warn("failed to shut down agent", "error", err)
				}
			}()
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		logger.Info("remote client connected", "agent", h.ID(), "remote_addr", r.RemoteAddr)
		for {
			var req JSONRPCRequest
			if err := conn.ReadJSON(&req); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug("remote agent connection ended", "error", err)
				}
				return
			}
			if err := conn.WriteJSON(dispatch(r.Context(), h, req)); err != nil {
				logger.Warn("failed to write response", "error", err)
				return
			}
		}
	})
}
