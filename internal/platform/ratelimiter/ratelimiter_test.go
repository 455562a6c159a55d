package ratelimiter

import (
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(1, 3, time.Minute)
	now := time.Now()
	for i := 0; i < 3; i++ {
		if !l.Allow("tok", now) {
			t.Fatalf("request %d within burst must be allowed", i)
		}
	}
	if l.Allow("tok", now) {
		t.Fatalf("burst exhausted, request must be denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()
	if !l.Allow("a", now) {
		t.Fatalf("first request for a must pass")
	}
	if !l.Allow("b", now) {
		t.Fatalf("a's consumption must not affect b")
	}
	if l.Allow("a", now) {
		t.Fatalf("a must be exhausted")
	}
}

func TestTokensRefillOverTime(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()
	if !l.Allow("tok", now) {
		t.Fatalf("first request must pass")
	}
	if l.Allow("tok", now) {
		t.Fatalf("second immediate request must be denied")
	}
	if !l.Allow("tok", now.Add(2*time.Second)) {
		t.Fatalf("token must refill after a second at 1 rps")
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *PerKey
	if !l.Allow("any", time.Now()) {
		t.Fatalf("nil limiter must allow")
	}
	if New(0, 0, 0) != nil {
		t.Fatalf("invalid limits must yield nil")
	}
}

func TestEmptyKeyBypasses(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()
	for i := 0; i < 5; i++ {
		if !l.Allow("  ", now) {
			t.Fatalf("blank keys are not limited")
		}
	}
}

func TestIdleBucketsAreSwept(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()
	l.Allow("idle", now)
	// Next call past the idle TTL triggers the sweep.
	l.Allow("fresh", now.Add(2*time.Minute))

	l.mu.Lock()
	_, idleKept := l.buckets["idle"]
	_, freshKept := l.buckets["fresh"]
	l.mu.Unlock()
	if idleKept {
		t.Fatalf("idle bucket must be evicted")
	}
	if !freshKept {
		t.Fatalf("fresh bucket must survive the sweep")
	}
}
