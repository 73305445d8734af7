package orchestrator

import (
	"math/rand/v2"
	"time"
)

// Polling constants. They are part of the observable timing contract with
// the backend and must not be tuned per deployment.
const (
	InitialInterval = 6 * time.Second
	MaxInterval     = 60 * time.Second
	BackoffFactor   = 1.2
	JitterFactor    = 0.2
	MaxAttempts     = 30
)

// NextDelay returns the delay to wait now and the interval to carry into the
// following attempt, for a uniform sample u in [0, 1). The delay is current
// perturbed by at most ±JitterFactor/2; the next interval grows by
// BackoffFactor and is capped at MaxInterval.
func NextDelay(current time.Duration, u float64) (delay, next time.Duration) {
	return nextDelay(current, u, BackoffFactor, JitterFactor, MaxInterval)
}

func nextDelay(current time.Duration, u, factor, jitterFactor float64, ceiling time.Duration) (time.Duration, time.Duration) {
	jitter := float64(current) * jitterFactor * (u - 0.5)
	delay := current + time.Duration(jitter)
	next := time.Duration(float64(current) * factor)
	if next > ceiling {
		next = ceiling
	}
	return delay, next
}

// Policy binds the backoff constants to a uniform random source. The zero
// value is not usable; start from DefaultPolicy.
type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      float64
	MaxAttempts int
	Uniform     func() float64
}

// DefaultPolicy returns the production polling policy.
func DefaultPolicy() Policy {
	return Policy{
		Initial:     InitialInterval,
		Max:         MaxInterval,
		Factor:      BackoffFactor,
		Jitter:      JitterFactor,
		MaxAttempts: MaxAttempts,
		Uniform:     rand.Float64,
	}
}

// Next applies the policy to current using a fresh random sample.
func (p Policy) Next(current time.Duration) (delay, next time.Duration) {
	u := 0.5
	if p.Uniform != nil {
		u = p.Uniform()
	}
	return nextDelay(current, u, p.Factor, p.Jitter, p.Max)
}
