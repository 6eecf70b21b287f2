package ratelimiting

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketRateLimiter(t *testing.T) {
	t.Parallel()

	t.Run("burst is consumed", func(t *testing.T) {
		t.Parallel()

		limiter, stop := NewTokenBucketRateLimiter(RefillPerSecond(1), BurstSize(3))
		defer stop()

		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Consume("key"))
		}
		assert.False(t, limiter.Consume("key"))
	})

	t.Run("keys are limited independently", func(t *testing.T) {
		t.Parallel()

		limiter, stop := NewTokenBucketRateLimiter(RefillPerSecond(1), BurstSize(1))
		defer stop()

		require.True(t, limiter.Consume("a"))
		require.False(t, limiter.Consume("a"))
		assert.True(t, limiter.Consume("b"))
	})
}

func TestIPKeyFunc(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/v1/aggregate/sales_kpis", nil)
	r.RemoteAddr = "192.0.2.1:51234"
	assert.Equal(t, "ip: 192.0.2.1", IPKeyFunc(r))

	r.RemoteAddr = "[::1]:51234"
	assert.Equal(t, "ip: ::1", IPKeyFunc(r))
}

func TestUserIDKeyFunc(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/v1/aggregate/sales_kpis", nil)
	r.Header.Set("X-User-Id", "42")
	assert.Equal(t, "userId: 42", UserIDKeyFunc(r))
}
