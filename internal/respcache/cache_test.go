package respcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet_BeforeTTL(t *testing.T) {
	c := New(time.Minute)
	c.Set("k", []byte("v"))

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestGet_AfterTTLRemovesEntry(t *testing.T) {
	clock := time.Now()
	c := New(time.Minute).WithNow(func() time.Time { return clock })
	c.Set("k", []byte("v"))

	clock = clock.Add(2 * time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	// Idempotent double-miss.
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestGet_MissUnknownKey(t *testing.T) {
	c := New(time.Minute)
	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestSet_RefreshesExpiry(t *testing.T) {
	clock := time.Now()
	c := New(time.Minute).WithNow(func() time.Time { return clock })
	c.Set("k", []byte("v1"))

	clock = clock.Add(45 * time.Second)
	c.Set("k", []byte("v2"))

	clock = clock.Add(30 * time.Second)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got)
}

func TestMakeKey_StableForSameRequest(t *testing.T) {
	a := MakeKey("extract", map[string]any{"url": "https://acme.com", "depth": 2})
	b := MakeKey("extract", map[string]any{"depth": 2, "url": "https://acme.com"})
	assert.Equal(t, a, b)
}

func TestMakeKey_DiffersAcrossRequests(t *testing.T) {
	a := MakeKey("extract", map[string]any{"url": "https://acme.com"})
	b := MakeKey("extract", map[string]any{"url": "https://other.com"})
	c := MakeKey("enrich", map[string]any{"url": "https://acme.com"})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 200; j++ {
				c.Set("shared", []byte("v"))
				c.Get("shared")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	_, ok := c.Get("shared")
	assert.True(t, ok)
}
