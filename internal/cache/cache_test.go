package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetGetExpire(t *testing.T) {
	c := New(time.Hour)
	defer c.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, c.Has("a"))
	assert.False(t, c.Has("missing"))

	now = now.Add(2 * time.Minute)
	assert.False(t, c.Has("a"))
	assert.Equal(t, 1, c.Len(), "expired item stays until sweep")

	c.cleanup()
	assert.Zero(t, c.Len())
}

func TestCache_Delete(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Set("k", "v", time.Hour)
	c.Delete("k")
	assert.False(t, c.Has("k"))
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New(time.Millisecond)
	c.Close()
	c.Close()
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("https://a"), Key("https://a"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("x"), 64)
}
