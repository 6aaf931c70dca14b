package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Client is a connection to a remote agent process.
type Client interface {
	// Call sends a request and decodes the result into result when non-nil.
	Call(ctx context.Context, method string, params, result any) error

	// Close disconnects from the remote agent
	Close() error

	// Name returns the client identifier
	Name() string
}

// Dial connects to endpoint: ws:// and wss:// URLs use a websocket,
// "stdio:<command> [args...]" starts a subprocess speaking line-delimited JSON.
func Dial(ctx context.Context, endpoint string, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case strings.HasPrefix(endpoint, "ws://"), strings.HasPrefix(endpoint, "wss://"):
		return NewWebSocketClient(ctx, endpoint, endpoint, logger)
	case strings.HasPrefix(endpoint, "stdio:"):
		args := strings.Fields(strings.TrimPrefix(endpoint, "stdio:"))
		if len(args) == 0 {
			return nil, fmt.Errorf("empty stdio command in endpoint %q", endpoint)
		}
		return NewStdioClient(args[0], args[0], args[1:], logger)
	default:
		return nil, fmt.Errorf("unsupported remote endpoint %q (want ws://, wss:// or stdio:)", endpoint)
	}
}

// decodeResponse checks the response for an RPC error and decodes the result.
func decodeResponse(response JSONRPCResponse, wantID int, result any) error {
	if response.ID != wantID {
		return fmt.Errorf("response id %d does not match request id %d", response.ID, wantID)
	}
	if response.Error != nil {
		return fmt.Errorf("RPC error %d: %s", response.Error.Code, response.Error.Message)
	}
	if result != nil && len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}
