package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/backend"
	"parley/internal/config"
	"parley/internal/message"
	"parley/internal/remote"
)

func testDeps() Deps {
	return Deps{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Credentials: config.Credentials{OllamaHost: "http://127.0.0.1:1"},
	}
}

func writeModelFile(t *testing.T, dir, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCreateRepeatQuery(t *testing.T) {
	opts := config.Default()
	opts.Model = config.ModelRepeatQuery

	a, eff, err := Create(context.Background(), opts, true, testDeps())
	require.NoError(t, err)
	assert.Equal(t, config.ModelRepeatQuery, eff.Model)
	assert.Equal(t, "repeat_query", a.ID())

	ctx := context.Background()
	reply, err := a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Nothing to repeat yet.", reply.Text)

	a.Observe(message.Message{ID: "localHuman", Text: "hello there"})
	reply, err = a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply.Text)
	assert.False(t, reply.EpisodeDone)

	a.Reset()
	reply, err = a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Nothing to repeat yet.", reply.Text)
	assert.NoError(t, a.Shutdown())
}

func TestCreateErrors(t *testing.T) {
	ctx := context.Background()

	_, _, err := Create(ctx, config.Default(), true, testDeps())
	assert.ErrorIs(t, err, config.ErrNoModel)

	opts := config.Default()
	opts.Model = "seq2seq"
	_, _, err = Create(ctx, opts, true, testDeps())
	assert.ErrorIs(t, err, ErrUnknownModel)

	opts = config.Default()
	opts.Model = config.ModelRepeatQuery
	opts.ModelFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, _, err = Create(ctx, opts, true, testDeps())
	assert.ErrorIs(t, err, config.ErrModelNotFound)

	a, _, err := Create(ctx, opts, false, testDeps())
	require.NoError(t, err)
	assert.Equal(t, "repeat_query", a.ID())
}

func TestCreateAppliesModelFile(t *testing.T) {
	datapath := t.TempDir()
	path := writeModelFile(t, filepath.Join(datapath, "models", "echo"), `
model: repeat_query
opt:
  display_prettify: true
  display_ignore_fields: labels
`)

	opts := config.Default()
	opts.Datapath = datapath
	opts.ModelFile = "models:echo"

	a, eff, err := Create(context.Background(), opts, true, testDeps())
	require.NoError(t, err)
	assert.Equal(t, "repeat_query", a.ID())
	assert.Equal(t, config.ModelRepeatQuery, eff.Model)
	assert.True(t, eff.DisplayPrettify)
	assert.Equal(t, []string{"labels"}, eff.IgnoreFields)
	assert.Equal(t, path, filepath.Join(eff.ModelFile, "model.yaml"))
}

func TestRandomCandidate(t *testing.T) {
	opts := config.Default()
	opts.Model = config.ModelRandomCandidate
	ctx := context.Background()

	pick := func() message.Message {
		a, _, err := Create(ctx, opts, true, testDeps())
		require.NoError(t, err)
		a.Observe(message.Message{Text: "pick one", LabelCandidates: []string{"red", "green", "blue", "yellow"}})
		reply, err := a.Act(ctx)
		require.NoError(t, err)
		return reply
	}

	first, second := pick(), pick()
	assert.Equal(t, first.Text, second.Text, "same seed gives the same pick")
	assert.ElementsMatch(t, []string{"red", "green", "blue", "yellow"}, first.TextCandidates)
	assert.Equal(t, first.TextCandidates[0], first.Text)

	a, _, err := Create(ctx, opts, true, testDeps())
	require.NoError(t, err)
	reply, err := a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Nothing to say yet.", reply.Text)

	a.Observe(message.Message{Text: "no candidates"})
	reply, err = a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", reply.Text)
}

func TestRandomCandidateFallback(t *testing.T) {
	path := writeModelFile(t, t.TempDir(), `
model: random_candidate
candidates: [only answer]
`)
	opts := config.Default()
	opts.ModelFile = path

	a, _, err := Create(context.Background(), opts, true, testDeps())
	require.NoError(t, err)
	a.Observe(message.Message{Text: "anything?"})
	reply, err := a.Act(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "only answer", reply.Text)
}

// fakeClient answers "reply N" and records every request.
type fakeClient struct {
	requests []backend.Request
	err      error
}

func (c *fakeClient) Name() string { return "fake" }

func (c *fakeClient) Complete(_ context.Context, req backend.Request) (backend.Reply, error) {
	if c.err != nil {
		return backend.Reply{}, c.err
	}
	c.requests = append(c.requests, req)
	return backend.Reply{
		Text:  fmt.Sprintf("reply %d", len(c.requests)),
		Usage: map[string]int64{"total_tokens": 5},
	}, nil
}

func TestLLMAgentHistory(t *testing.T) {
	client := &fakeClient{}
	a := newLLMAgentWithClient(client, config.ModelFile{SystemPrompt: "be nice", ModelName: "m"}, testDeps().withDefaults())
	ctx := context.Background()

	a.Observe(message.Message{Text: "a"})
	reply, err := a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reply 1", reply.Text)
	assert.Equal(t, "fake", reply.ID)

	a.Observe(message.Message{Text: "b", EpisodeDone: true})
	reply, err = a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reply 2", reply.Text)

	require.Len(t, client.requests, 2)
	last := client.requests[1]
	assert.Equal(t, "be nice", last.System)
	assert.Equal(t, "m", last.Model)
	assert.Equal(t, []backend.Turn{
		{Role: backend.RoleUser, Content: "a"},
		{Role: backend.RoleAssistant, Content: "reply 1"},
		{Role: backend.RoleUser, Content: "b"},
	}, last.Turns)

	// The episode ended, so the next conversation starts fresh and the
	// first exchange is served from the cache.
	assert.Empty(t, a.history)
	a.Observe(message.Message{Text: "a"})
	reply, err = a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reply 1", reply.Text)
	assert.Len(t, client.requests, 2)
}

func TestLLMAgentHistoryWindow(t *testing.T) {
	client := &fakeClient{}
	a := newLLMAgentWithClient(client, config.ModelFile{HistorySize: 2}, testDeps().withDefaults())
	ctx := context.Background()

	for _, text := range []string{"one", "two"} {
		a.Observe(message.Message{Text: text})
		_, err := a.Act(ctx)
		require.NoError(t, err)
	}

	require.Len(t, client.requests, 2)
	assert.Equal(t, []backend.Turn{{Role: backend.RoleUser, Content: "two"}}, client.requests[1].Turns)
}

func TestLLMAgentEpisodeDoneWithoutText(t *testing.T) {
	client := &fakeClient{}
	a := newLLMAgentWithClient(client, config.ModelFile{}, testDeps().withDefaults())

	a.Observe(message.Message{Text: "hi"})
	_, err := a.Act(context.Background())
	require.NoError(t, err)

	a.Observe(message.Message{EpisodeDone: true})
	reply, err := a.Act(context.Background())
	require.NoError(t, err)
	assert.True(t, reply.EpisodeDone)
	assert.Empty(t, reply.Text)
	assert.Empty(t, a.history)
	assert.Len(t, client.requests, 1)
}

func TestLLMAgentBackendError(t *testing.T) {
	boom := errors.New("boom")
	a := newLLMAgentWithClient(&fakeClient{err: boom}, config.ModelFile{}, testDeps().withDefaults())

	a.Observe(message.Message{Text: "hi"})
	_, err := a.Act(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestCreateOllamaAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "hello from llama"},
			"done":    true,
		})
	}))
	defer srv.Close()

	path := writeModelFile(t, t.TempDir(), fmt.Sprintf("model: ollama\nendpoint: %s\n", srv.URL))
	opts := config.Default()
	opts.ModelFile = path

	a, _, err := Create(context.Background(), opts, true, testDeps())
	require.NoError(t, err)
	assert.Equal(t, "ollama", a.ID())

	a.Observe(message.Message{Text: "hi"})
	reply, err := a.Act(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello from llama", reply.Text)
}

// countingHandler reports how many observations it received.
type countingHandler struct {
	seen []string
}

func (h *countingHandler) ID() string { return "counter" }

func (h *countingHandler) Observe(msg message.Message) { h.seen = append(h.seen, msg.Text) }

func (h *countingHandler) Act(context.Context) (message.Message, error) {
	return message.Message{Text: fmt.Sprintf("seen %d: %s", len(h.seen), strings.Join(h.seen, ","))}, nil
}

func (h *countingHandler) Reset() { h.seen = nil }

func TestRemoteAgent(t *testing.T) {
	srv := httptest.NewServer(remote.WebSocketHandler(func() (remote.Handler, error) { return &countingHandler{}, nil }, nil))
	defer srv.Close()

	path := writeModelFile(t, t.TempDir(), "model: remote\nendpoint: ws"+strings.TrimPrefix(srv.URL, "http")+"\n")
	opts := config.Default()
	opts.ModelFile = path

	ctx := context.Background()
	a, _, err := Create(ctx, opts, true, testDeps())
	require.NoError(t, err)
	assert.Equal(t, "counter", a.ID())

	a.Observe(message.Message{Text: "x"})
	a.Observe(message.Message{Text: "y"})
	reply, err := a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "seen 2: x,y", reply.Text)
	assert.Equal(t, "counter", reply.ID)

	a.Reset()
	reply, err = a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "seen 0: ", reply.Text)

	require.NoError(t, a.Shutdown())
}

func TestRemoteAgentNeedsEndpoint(t *testing.T) {
	opts := config.Default()
	opts.Model = config.ModelRemote
	_, _, err := Create(context.Background(), opts, true, testDeps())
	assert.ErrorIs(t, err, errNoEndpoint)
}

func TestRegister(t *testing.T) {
	Register("test_register", newRepeatQuery)
	t.Cleanup(func() { delete(registry, "test_register") })

	assert.Contains(t, Models(), "test_register")
	assert.Panics(t, func() { Register("test_register", newRepeatQuery) })
	assert.Panics(t, func() { Register("test_nil", nil) })

	opts := config.Default()
	opts.Model = "test_register"
	a, _, err := Create(context.Background(), opts, true, testDeps())
	require.NoError(t, err)
	assert.Equal(t, config.ModelRepeatQuery, a.ID())
}
