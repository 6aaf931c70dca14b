package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "parley.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sess := NewSession("interactive", "repeat_query")
	require.NotEmpty(t, sess.ID)
	require.NoError(t, s.CreateSession(ctx, sess))

	require.NoError(t, s.AppendMessages(ctx, sess.ID, []Record{
		{Turn: 0, Speaker: "localHuman", Content: "hi"},
		{Turn: 0, Speaker: "repeat_query", Content: "hi"},
	}))
	require.NoError(t, s.AppendMessages(ctx, sess.ID, []Record{
		{Turn: 1, Speaker: "localHuman", EpisodeDone: true},
	}))

	records, err := s.Messages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "localHuman", records[0].Speaker)
	assert.Equal(t, "repeat_query", records[1].Speaker)
	assert.True(t, records[2].EpisodeDone)
	assert.False(t, records[2].Timestamp.IsZero())
}

func TestListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	older := NewSession("interactive", "a")
	older.StartTime = time.Now().Add(-time.Hour)
	newer := NewSession("interactive", "b")
	require.NoError(t, s.CreateSession(ctx, older))
	require.NoError(t, s.CreateSession(ctx, newer))

	sessions, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.Equal(t, "a", sessions[1].Model)

	limited, err := s.ListSessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMessagesUnknownSession(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Messages(context.Background(), "nope")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
