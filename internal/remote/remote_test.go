package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/message"
)

// echoHandler replies with the last observed text in upper case.
type echoHandler struct {
	last   string
	resets int
}

func (h *echoHandler) ID() string { return "echo" }

func (h *echoHandler) Observe(msg message.Message) { h.last = msg.Text }

func (h *echoHandler) Act(context.Context) (message.Message, error) {
	return message.Message{Text: strings.ToUpper(h.last)}, nil
}

func (h *echoHandler) Reset() {
	h.last = ""
	h.resets++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func exerciseClient(t *testing.T, c Client) {
	t.Helper()
	ctx := context.Background()

	var init InitializeResult
	require.NoError(t, c.Call(ctx, MethodInitialize, InitializeParams{ClientName: "test"}, &init))
	assert.Equal(t, "echo", init.AgentID)

	require.NoError(t, c.Call(ctx, MethodObserve, ObserveParams{Message: message.Message{ID: "localHuman", Text: "hello"}}, nil))

	var act ActResult
	require.NoError(t, c.Call(ctx, MethodAct, nil, &act))
	assert.Equal(t, "HELLO", act.Message.Text)
	assert.Equal(t, "echo", act.Message.ID)

	require.NoError(t, c.Call(ctx, MethodReset, nil, nil))

	err := c.Call(ctx, "agent/dance", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-32601")
}

func TestWebSocketClient(t *testing.T) {
	srv := httptest.NewServer(WebSocketHandler(func() (Handler, error) { return &echoHandler{}, nil }, discardLogger()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), url, discardLogger())
	require.NoError(t, err)

	exerciseClient(t, c)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Error(t, c.Call(context.Background(), MethodAct, nil, nil))
}

func TestHelperStdioAgent(t *testing.T) {
	switch os.Getenv("PARLEY_REMOTE_HELPER") {
	case "1":
		_ = ServeStdio(context.Background(), &echoHandler{}, os.Stdin, os.Stdout)
	case "silent":
		_, _ = io.Copy(io.Discard, os.Stdin)
	default:
		return
	}
	os.Exit(0)
}

func TestStdioClient(t *testing.T) {
	t.Setenv("PARLEY_REMOTE_HELPER", "1")

	c, err := Dial(context.Background(), "stdio:"+os.Args[0]+" -test.run=^TestHelperStdioAgent$", discardLogger())
	require.NoError(t, err)
	defer c.Close()

	exerciseClient(t, c)
}

func TestStdioClientCallHonorsContext(t *testing.T) {
	t.Setenv("PARLEY_REMOTE_HELPER", "silent")

	c, err := Dial(context.Background(), "stdio:"+os.Args[0]+" -test.run=^TestHelperStdioAgent$", discardLogger())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = c.Call(ctx, MethodAct, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestStdioClientSkipsLateResponses(t *testing.T) {
	var sent bytes.Buffer
	c := &StdioClient{
		name:      "test",
		stdin:     nopWriteCloser{&sent},
		responses: make(chan []byte, 2),
		done:      make(chan struct{}),
		reqID:     1,
		logger:    discardLogger(),
	}
	c.responses <- []byte(`{"jsonrpc":"2.0","id":1,"result":{"agentId":"stale"}}`)
	c.responses <- []byte(`{"jsonrpc":"2.0","id":2,"result":{"agentId":"fresh"}}`)

	var init InitializeResult
	require.NoError(t, c.Call(context.Background(), MethodInitialize, InitializeParams{ClientName: "test"}, &init))
	assert.Equal(t, "fresh", init.AgentID)
	assert.Contains(t, sent.String(), `"id":2`)
}

func TestDialRejectsUnknownScheme(t *testing.T) {
	_, err := Dial(context.Background(), "http://example.com", discardLogger())
	require.Error(t, err)

	_, err = Dial(context.Background(), "stdio:   ", discardLogger())
	require.Error(t, err)
}

func TestServeStdioParseError(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ServeStdio(context.Background(), &echoHandler{}, strings.NewReader("not json\n"), &out))

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

func TestDecodeResponseIDMismatch(t *testing.T) {
	err := decodeResponse(JSONRPCResponse{ID: 2}, 1, nil)
	require.Error(t, err)
}
