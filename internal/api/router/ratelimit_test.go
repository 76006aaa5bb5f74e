package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "other IPs have their own bucket")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_EvictsIdle(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1})
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")
	assert.Len(t, rl.ips, 2)

	now = now.Add(idleLimiterTTL + time.Minute)
	rl.Allow("10.0.0.3")
	assert.Len(t, rl.ips, 1)
}

func TestNewRateLimiter_DefaultBurst(t *testing.T) {
	assert.Equal(t, 5, NewRateLimiter(RateLimitConfig{RequestsPerSecond: 5}).burst)
	assert.Equal(t, 1, NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.5}).burst)
}
