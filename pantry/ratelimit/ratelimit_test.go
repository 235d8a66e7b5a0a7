package ratelimit

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemory_RejectsOverLimitThenRecovers(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rule := Rule{Window: 15 * time.Minute, Max: 5}
	l := NewMemory(rule).WithClock(clock.now)
	ctx := context.Background()

	for i := 0; i < rule.Max; i++ {
		d, err := l.Allow(ctx, "203.0.113.7")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, rule.Max-i-1, d.Remaining)
		clock.advance(time.Minute)
	}

	d, err := l.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	// First hit was at 12:00, now is 12:05, window 15m.
	assert.Equal(t, 10*time.Minute, d.RetryAfter)

	other, _ := l.Allow(ctx, "198.51.100.1")
	assert.True(t, other.Allowed, "keys are independent")

	clock.advance(d.RetryAfter + time.Millisecond)
	d, err = l.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemory_FullWindowElapsed(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewMemory(Rule{Window: time.Hour, Max: 3}).WithClock(clock.now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, _ := l.Allow(ctx, "k")
		require.True(t, d.Allowed)
	}
	d, _ := l.Allow(ctx, "k")
	require.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	clock.advance(time.Hour + time.Second)
	d, _ = l.Allow(ctx, "k")
	assert.True(t, d.Allowed)
}

func TestMemory_SweepsIdleKeys(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewMemory(Rule{Window: time.Minute, Max: 1}).WithClock(clock.now)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	assert.Len(t, l.hits, 2)

	clock.advance(2 * time.Minute)
	_, _ = l.Allow(ctx, "c")
	assert.Len(t, l.hits, 1)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", ClientIP(req))

	req.RemoteAddr = "2001:db8::1"
	assert.Equal(t, "2001:db8::1", ClientIP(req))

	req.RemoteAddr = ""
	assert.Equal(t, "unknown", ClientIP(req))
}

// TestRedis_SlidingWindow runs against a real Redis when
// CONCLAVE_TEST_REDIS_URL is set.
func TestRedis_SlidingWindow(t *testing.T) {
	url := os.Getenv("CONCLAVE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CONCLAVE_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	key := "test-" + time.Now().Format("150405.000000")
	l := NewRedis(client, Rule{Window: 2 * time.Second, Max: 2}, "conclave:test:rl:")
	t.Cleanup(func() { client.Del(ctx, "conclave:test:rl:"+key) })

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 2*time.Second)
}
