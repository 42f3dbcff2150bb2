package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhaustsBurst(t *testing.T) {
	b := newTokenBucket(RateLimitConfig{Burst: 3, RefillInterval: time.Hour})

	assert.True(t, b.allow())
	assert.True(t, b.allow())
	assert.True(t, b.allow())
	assert.False(t, b.allow())
}

func TestTokenBucketRefills(t *testing.T) {
	b := newTokenBucket(RateLimitConfig{Burst: 1, RefillInterval: 10 * time.Millisecond})

	assert.True(t, b.allow())
	assert.False(t, b.allow())

	time.Sleep(25 * time.Millisecond)
	assert.True(t, b.allow())
}

func TestTokenBucketClampsDegenerateConfig(t *testing.T) {
	b := newTokenBucket(RateLimitConfig{})

	assert.True(t, b.allow())
	assert.False(t, b.allow())
}
