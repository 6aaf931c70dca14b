package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"parley/internal/backend"
)

func TestKeyDependsOnWholeConversation(t *testing.T) {
	base := backend.Request{Model: "m", System: "s", Turns: []backend.Turn{{Role: backend.RoleUser, Content: "hi"}}}

	same := base
	assert.Equal(t, Key(base), Key(same))

	other := base
	other.Turns = []backend.Turn{{Role: backend.RoleAssistant, Content: "hi"}}
	assert.NotEqual(t, Key(base), Key(other))

	split := backend.Request{Model: "m", System: "s", Turns: []backend.Turn{{Role: backend.RoleUser, Content: "h"}, {Role: "i"}}}
	assert.NotEqual(t, Key(base), Key(split))
}

func TestGetPut(t *testing.T) {
	var c Cache
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("k", "v")
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestExpiredEntriesAreDropped(t *testing.T) {
	c := Cache{TTL: time.Millisecond}
	c.entries.Store("k", CachedResponse{Response: "old", Timestamp: time.Now().Add(-time.Second)})

	_, ok := c.Get("k")
	assert.False(t, ok)
}
