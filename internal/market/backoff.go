package market

import (
	"math/rand"
	"time"
)

// Backoff produces jittered exponential reconnect delays. It starts at
// base, doubles per failure up to max, and Reset drops it back to base
// after a healthy connection.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	attempt int
	randFn  func() float64
}

// NewBackoff returns a backoff with 1s base and 60s ceiling.
func NewBackoff() *Backoff {
	return &Backoff{Base: time.Second, Max: 60 * time.Second}
}

// Next returns the delay to wait before the next attempt and advances
// the attempt counter. Jitter spreads reconnects across ±20%.
func (b *Backoff) Next() time.Duration {
	d := b.Base
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d >= b.Max {
			d = b.Max
			break
		}
	}
	b.attempt++

	randFn := b.randFn
	if randFn == nil {
		randFn = rand.Float64
	}
	jittered := time.Duration(float64(d) * (0.8 + 0.4*randFn()))
	if jittered > b.Max {
		jittered = b.Max
	}
	return jittered
}

// Reset rearms the backoff after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns how many delays have been handed out since the last
// reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}
