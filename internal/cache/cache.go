package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"parley/internal/backend"
)

// CachedResponse represents a cached backend reply
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// Cache maps conversation keys to replies. Entries older than TTL are
// ignored; a zero TTL keeps entries forever.
type Cache struct {
	TTL     time.Duration
	entries sync.Map
}

// Key hashes the model name, system prompt and turns of a request.
func Key(req backend.Request) string {
	h := sha256.New()
	h.Write([]byte(req.Model))
	h.Write([]byte{0})
	h.Write([]byte(req.System))
	for _, t := range req.Turns {
		h.Write([]byte{0})
		h.Write([]byte(t.Role))
		h.Write([]byte{0})
		h.Write([]byte(t.Content))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the cached reply for key.
func (c *Cache) Get(key string) (string, bool) {
	val, ok := c.entries.Load(key)
	if !ok {
		return "", false
	}
	cached := val.(CachedResponse)
	if c.TTL > 0 && time.Since(cached.Timestamp) > c.TTL {
		c.entries.Delete(key)
		return "", false
	}
	return cached.Response, true
}

// Put stores a reply for key.
func (c *Cache) Put(key, response string) {
	c.entries.Store(key, CachedResponse{
		Response:  response,
		Timestamp: time.Now(),
	})
}
