package scheduler

import (
	"strings"
	"time"

	"github.com/listup/publisher/internal/models"
)

// BackoffPolicy computes the wait interval required before a failed listing
// may be attempted again. The interval grows exponentially with attempt
// count and is capped; rate-limited failures stretch it further than the
// normal schedule.
type BackoffPolicy struct {
	Base                time.Duration
	Cap                 time.Duration
	RateLimitMultiplier float64
}

// Interval returns the backoff after the given attempt count. It is
// non-decreasing in the attempt count and never below Base once at least
// one attempt happened.
func (p BackoffPolicy) Interval(attemptCount int, lastError string) time.Duration {
	if attemptCount <= 0 {
		return 0
	}

	base := p.Base
	if base <= 0 {
		base = time.Minute
	}
	capValue := p.Cap
	if capValue < base {
		capValue = base
	}

	// Shift overflow guard; capped well before this matters in practice
	exponent := attemptCount - 1
	if exponent > 32 {
		exponent = 32
	}

	interval := base << uint(exponent)
	if interval > capValue || interval < base {
		interval = capValue
	}

	// Throttling by the platform means the normal schedule is too eager
	if strings.HasPrefix(lastError, string(models.ReasonRateLimited)) && p.RateLimitMultiplier > 1 {
		interval = time.Duration(float64(interval) * p.RateLimitMultiplier)
	}

	return interval
}
