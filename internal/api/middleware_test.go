package api

import (
	"testing"

	"golang.org/x/time/rate"
)

func TestIPRateLimiterIsolatesClients(t *testing.T) {
	l := &ipRateLimiter{limiters: make(map[string]*rate.Limiter)}

	for i := 0; i < 50; i++ {
		if !l.get("10.0.0.1").Allow() {
			t.Fatalf("burst request %d denied", i)
		}
	}
	if l.get("10.0.0.1").Allow() {
		t.Error("expected the burst to be exhausted")
	}
	if !l.get("10.0.0.2").Allow() {
		t.Error("another client must have its own bucket")
	}
}

func TestIPRateLimiterInstancesIndependent(t *testing.T) {
	a := &ipRateLimiter{limiters: make(map[string]*rate.Limiter)}
	b := &ipRateLimiter{limiters: make(map[string]*rate.Limiter)}

	for i := 0; i < 51; i++ {
		a.get("10.0.0.1").Allow()
	}
	if !b.get("10.0.0.1").Allow() {
		t.Error("separate servers must not share rate state")
	}
}
