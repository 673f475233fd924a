package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffIntervalGrowsAndCaps(t *testing.T) {
	policy := BackoffPolicy{
		Base: 2 * time.Minute,
		Cap:  2 * time.Hour,
	}

	assert.Equal(t, time.Duration(0), policy.Interval(0, ""))
	assert.Equal(t, 2*time.Minute, policy.Interval(1, ""))
	assert.Equal(t, 4*time.Minute, policy.Interval(2, ""))
	assert.Equal(t, 8*time.Minute, policy.Interval(3, ""))

	// Non-decreasing over a long run of attempts, and never above the cap
	prev := time.Duration(0)
	for attempt := 1; attempt <= 64; attempt++ {
		interval := policy.Interval(attempt, "")
		assert.GreaterOrEqual(t, interval, prev, "interval decreased at attempt %d", attempt)
		assert.LessOrEqual(t, interval, policy.Cap, "interval exceeded cap at attempt %d", attempt)
		prev = interval
	}

	assert.Equal(t, 2*time.Hour, policy.Interval(64, ""))
}

func TestBackoffIntervalRateLimitMultiplier(t *testing.T) {
	policy := BackoffPolicy{
		Base:                time.Minute,
		Cap:                 time.Hour,
		RateLimitMultiplier: 3,
	}

	normal := policy.Interval(2, "timeout:fields_filled")
	throttled := policy.Interval(2, "rate_limited")

	assert.Equal(t, 2*time.Minute, normal)
	assert.Equal(t, 6*time.Minute, throttled)

	// The multiplier applies after the cap: a throttled account waits longer
	// than the normal schedule ever does
	assert.Equal(t, 3*time.Hour, policy.Interval(20, "rate_limited"))
}

func TestBackoffIntervalDefaults(t *testing.T) {
	// Zero-valued policy still produces a sane wait
	policy := BackoffPolicy{}
	assert.Equal(t, time.Minute, policy.Interval(1, ""))

	// Cap below base is lifted to base
	policy = BackoffPolicy{Base: 10 * time.Minute, Cap: time.Minute}
	assert.Equal(t, 10*time.Minute, policy.Interval(1, ""))
	assert.Equal(t, 10*time.Minute, policy.Interval(5, ""))
}
