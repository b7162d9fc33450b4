package limiters

import (
	"testing"
	"time"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

func TestIPThrottleBurstThenRefill(t *testing.T) {
	th := NewIPThrottle(IPConfig{Limit: 10, Window: 5 * time.Minute})

	for i := 0; i < 10; i++ {
		if ok, _ := th.Allow("10.0.0.1", t0); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	ok, wait := th.Allow("10.0.0.1", t0)
	if ok {
		t.Fatalf("11th request should be denied")
	}
	// One token per 30s.
	if wait <= 0 || wait > 30*time.Second {
		t.Fatalf("unexpected wait %v", wait)
	}

	if ok, _ := th.Allow("10.0.0.1", t0.Add(31*time.Second)); !ok {
		t.Fatalf("a token should have refilled after 31s")
	}
	if ok, _ := th.Allow("10.0.0.2", t0); !ok {
		t.Fatalf("addresses must not share a bucket")
	}
}

func TestIPThrottleCleanup(t *testing.T) {
	th := NewIPThrottle(IPConfig{Limit: 1, Window: time.Minute, IdleTTL: time.Minute})

	th.Allow("a", t0)
	th.Allow("b", t0.Add(2*time.Minute))
	if th.Len() != 2 {
		t.Fatalf("expected 2 tracked addresses, got %d", th.Len())
	}

	if n := th.Cleanup(t0.Add(2 * time.Minute)); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if th.Len() != 1 {
		t.Fatalf("expected 1 tracked address, got %d", th.Len())
	}
}

func TestIPThrottleNilSafe(t *testing.T) {
	var th *IPThrottle
	if ok, wait := th.Allow("10.0.0.1", t0); !ok || wait != 0 {
		t.Fatalf("nil throttle must allow")
	}
	if NewIPThrottle(IPConfig{}) != nil {
		t.Fatalf("zero config must yield a nil throttle")
	}

	th = NewIPThrottle(IPConfig{Limit: 1, Window: time.Minute})
	for i := 0; i < 3; i++ {
		if ok, _ := th.Allow("", t0); !ok {
			t.Fatalf("empty address must not be throttled")
		}
	}
}
