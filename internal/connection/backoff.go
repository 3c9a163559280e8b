package connection

import (
	"math"
	"time"
)

// Backoff computes reconnect delays: min(Max, Base * Multiplier^attempt) scaled by a
// jitter factor drawn from [JitterMin, JitterMax).
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	JitterMin  float64
	JitterMax  float64
}

// DefaultBackoff returns the 3s * 1.5^n policy capped at 30s with ±20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       3 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 1.5,
		JitterMin:  0.8,
		JitterMax:  1.2,
	}
}

// BaseDelay returns the pre-jitter delay for the given zero-based attempt.
func (b Backoff) BaseDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d)
}

// Delay returns the jittered delay for attempt. r must be in [0, 1).
func (b Backoff) Delay(attempt int, r float64) time.Duration {
	factor := b.JitterMin + r*(b.JitterMax-b.JitterMin)
	return time.Duration(float64(b.BaseDelay(attempt)) * factor)
}
