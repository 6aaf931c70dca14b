package human

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/config"
	"parley/internal/message"
)

func newAgent(t *testing.T, opts config.Options, input string) (*Agent, *bytes.Buffer) {
	t.Helper()
	opts, err := config.Normalize(opts)
	require.NoError(t, err)
	var out bytes.Buffer
	a, err := New(opts, strings.NewReader(input), &out)
	require.NoError(t, err)
	return a, &out
}

func TestActReadsLines(t *testing.T) {
	a, out := newAgent(t, config.Default(), "hello\nBob is Blue.\\nWhat is Bob?\n")
	ctx := context.Background()

	msg, err := a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, ID, msg.ID)
	assert.Equal(t, "hello", msg.Text)
	assert.False(t, msg.EpisodeDone)

	msg, err = a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bob is Blue.\nWhat is Bob?", msg.Text)

	assert.Contains(t, out.String(), "Enter Your Message:")
	assert.False(t, a.Finished())
}

func TestActDoneAndExit(t *testing.T) {
	a, _ := newAgent(t, config.Default(), "[DONE]\nbye [DONE]\n[EXIT]\nnever read\n")
	ctx := context.Background()

	msg, err := a.Act(ctx)
	require.NoError(t, err)
	assert.True(t, msg.EpisodeDone)
	assert.Empty(t, msg.Text)

	msg, err = a.Act(ctx)
	require.NoError(t, err)
	assert.True(t, msg.EpisodeDone)
	assert.Equal(t, "bye", msg.Text)
	assert.False(t, a.Finished())

	msg, err = a.Act(ctx)
	require.NoError(t, err)
	assert.True(t, msg.EpisodeDone)
	assert.True(t, a.Finished())

	msg, err = a.Act(ctx)
	require.NoError(t, err)
	assert.True(t, msg.EpisodeDone)
	assert.Empty(t, msg.Text)
}

func TestActEndOfInputFinishes(t *testing.T) {
	a, _ := newAgent(t, config.Default(), "")
	msg, err := a.Act(context.Background())
	require.NoError(t, err)
	assert.True(t, msg.EpisodeDone)
	assert.True(t, a.Finished())
}

func TestActFinishesOnCancelledContext(t *testing.T) {
	a, _ := newAgent(t, config.Default(), "hi\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	msg, err := a.Act(ctx)
	require.NoError(t, err)
	assert.True(t, msg.EpisodeDone)
	assert.Empty(t, msg.Text)
	assert.True(t, a.Finished())
}

func TestActReturnsWhenCancelledWhileWaiting(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	a, err := New(config.Default(), r, io.Discard)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	type result struct {
		msg message.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := a.Act(ctx)
		done <- result{msg, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.True(t, res.msg.EpisodeDone)
		assert.Empty(t, res.msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("Act did not return after the context was cancelled")
	}
	assert.True(t, a.Finished())
}

func TestActReadsAcrossCalls(t *testing.T) {
	r, w := io.Pipe()
	a, err := New(config.Default(), r, io.Discard)
	require.NoError(t, err)

	go func() {
		fmt.Fprintln(w, "first")
		fmt.Fprintln(w, "second [DONE]")
		w.Close()
	}()

	ctx := context.Background()
	msg, err := a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Text)

	msg, err = a.Act(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Text)
	assert.True(t, msg.EpisodeDone)

	msg, err = a.Act(ctx)
	require.NoError(t, err)
	assert.True(t, msg.EpisodeDone)
	assert.True(t, a.Finished())
}

func TestSingleTurnAndCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cands.txt")
	require.NoError(t, os.WriteFile(path, []byte("yes\n\n no \n"), 0o644))

	opts := config.Default()
	opts.SingleTurn = true
	opts.LocalHumanCandidatesFile = path
	a, _ := newAgent(t, opts, "maybe\n")

	msg, err := a.Act(context.Background())
	require.NoError(t, err)
	assert.True(t, msg.EpisodeDone)
	assert.Equal(t, []string{"yes", "no"}, msg.LabelCandidates)
}

func TestMissingCandidatesFile(t *testing.T) {
	opts := config.Default()
	opts.LocalHumanCandidatesFile = filepath.Join(t.TempDir(), "nope.txt")
	_, err := New(opts, strings.NewReader(""), &bytes.Buffer{})
	require.Error(t, err)
}

func TestObserveAndBanner(t *testing.T) {
	a, out := newAgent(t, config.Default(), "")
	a.Banner()
	a.Observe(message.Message{ID: "repeat_query", Text: "hi back", TextCandidates: []string{"hidden"}})
	a.Observe(message.Message{})

	s := out.String()
	assert.Contains(t, s, "[DONE]")
	assert.Contains(t, s, "[repeat_query]: hi back")
	assert.NotContains(t, s, "hidden")
}
