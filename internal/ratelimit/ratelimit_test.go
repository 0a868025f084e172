package ratelimit

import (
	"testing"
	"time"
)

func TestNoopAlwaysAllows(t *testing.T) {
	var lim Noop
	for i := 0; i < 100; i++ {
		allowed, retry := lim.Allow("any")
		if !allowed || retry != 0 {
			t.Fatalf("Noop.Allow = (%v, %d)", allowed, retry)
		}
	}
}

func TestInMemoryLimitPerKey(t *testing.T) {
	lim := NewInMemory(3, time.Minute)
	for i := 0; i < 3; i++ {
		if allowed, _ := lim.Allow("client1"); !allowed {
			t.Fatalf("request %d denied within limit", i+1)
		}
	}
	allowed, retry := lim.Allow("client1")
	if allowed {
		t.Fatal("fourth request allowed")
	}
	if retry < 1 {
		t.Errorf("retry after %d, want >= 1", retry)
	}

	// Other keys are unaffected.
	if allowed, _ := lim.Allow("client2"); !allowed {
		t.Fatal("independent key denied")
	}
}

func TestInMemoryWindowSlides(t *testing.T) {
	lim := NewInMemory(2, time.Minute)
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	lim.now = func() time.Time { return clock }

	lim.Allow("k")
	clock = clock.Add(30 * time.Second)
	lim.Allow("k")

	if allowed, retry := lim.Allow("k"); allowed || retry != 30 {
		t.Fatalf("at capacity: allowed=%v retry=%d, want denied retry=30", allowed, retry)
	}

	// The first hit leaves the window; one slot opens.
	clock = clock.Add(31 * time.Second)
	if allowed, _ := lim.Allow("k"); !allowed {
		t.Fatal("request denied after window slid")
	}
	if allowed, _ := lim.Allow("k"); allowed {
		t.Fatal("over capacity again but allowed")
	}
}

func TestInMemoryDropsIdleKeys(t *testing.T) {
	lim := NewInMemory(1, time.Minute)
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	lim.now = func() time.Time { return clock }

	lim.Allow("idle")
	clock = clock.Add(2 * time.Minute)
	lim.prune("idle", clock)

	lim.mu.Lock()
	_, present := lim.hits["idle"]
	lim.mu.Unlock()
	if present {
		t.Fatal("idle key kept in map")
	}
}
