package rate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
	"github.com/MrEthical07/goMagicLink/internal/stores/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var t0 = time.UnixMilli(1_700_000_000_000).UTC()

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *redisstore.Store) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisstore.New(client, "rlt")
	return New(store, cfg), store
}

func defaultTestConfig() Config {
	return Config{Limit: 3, Window: 15 * time.Minute}
}

func TestCheckAndRecordScenario(t *testing.T) {
	l, _ := newTestLimiter(t, defaultTestConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.CheckAndRecord(ctx, Request{Identity: "a@x.com"}, t0.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if !res.Allowed || res.Count != i+1 || res.Limit != 3 {
			t.Fatalf("call %d: unexpected result %+v", i, res)
		}
		if res.RetryAfter != 0 {
			t.Fatalf("allowed result must not carry retry: %+v", res)
		}
	}

	now := t0.Add(3 * time.Second)
	res, err := l.CheckAndRecord(ctx, Request{Identity: "a@x.com"}, now)
	if err != nil {
		t.Fatalf("fourth call failed: %v", err)
	}
	if res.Allowed || res.Count != 3 {
		t.Fatalf("expected denial at count 3, got %+v", res)
	}
	if want := 15*time.Minute - 3*time.Second; res.RetryAfter != want || res.RetryAfterMs() != want.Milliseconds() {
		t.Fatalf("expected retry %v, got %v", want, res.RetryAfter)
	}
}

func TestDeniedRequestsAreNotRecorded(t *testing.T) {
	l, store := newTestLimiter(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := l.CheckAndRecord(ctx, Request{Identity: "a@x.com"}, t0); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	entries, err := store.RateLimitWindow(ctx, "a@x.com", time.Time{})
	if err != nil {
		t.Fatalf("RateLimitWindow failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 recorded entry, got %d", len(entries))
	}
	e := entries[0]
	if e.RequestKind != DefaultRequestKind || e.IPAddress != "unknown" || e.UserAgent != "unknown" || e.RequestID == "" {
		t.Fatalf("unexpected entry defaults: %+v", e)
	}
}

func TestWindowLowerBoundInclusive(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	if res, err := l.CheckAndRecord(ctx, Request{Identity: "a@x.com"}, t0); err != nil || !res.Allowed {
		t.Fatalf("first call: %+v err=%v", res, err)
	}

	res, err := l.CheckAndRecord(ctx, Request{Identity: "a@x.com"}, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("boundary call failed: %v", err)
	}
	if res.Allowed {
		t.Fatalf("entry at exactly now-window must still count")
	}
	if res.RetryAfter != time.Millisecond {
		t.Fatalf("expected 1ms retry at the boundary, got %v", res.RetryAfter)
	}

	res, err = l.CheckAndRecord(ctx, Request{Identity: "a@x.com"}, t0.Add(time.Minute+time.Millisecond))
	if err != nil || !res.Allowed {
		t.Fatalf("expected admission after the window slides: %+v err=%v", res, err)
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	for _, id := range []string{"a@x.com", "b@x.com"} {
		res, err := l.CheckAndRecord(ctx, Request{Identity: id}, t0)
		if err != nil || !res.Allowed {
			t.Fatalf("%s: %+v err=%v", id, res, err)
		}
	}
}

func TestCheckIsReadOnly(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Check(ctx, "a@x.com", t0)
		if err != nil || !res.Allowed || res.Count != 0 {
			t.Fatalf("Check %d: %+v err=%v", i, res, err)
		}
	}

	_, _ = l.CheckAndRecord(ctx, Request{Identity: "a@x.com"}, t0)
	_, _ = l.CheckAndRecord(ctx, Request{Identity: "a@x.com"}, t0.Add(time.Second))

	res, err := l.Check(ctx, "a@x.com", t0.Add(2*time.Second))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Allowed || res.Count != 2 || res.RetryAfter != time.Minute-2*time.Second {
		t.Fatalf("unexpected Check result %+v", res)
	}
}

func TestStats(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	calls := []string{"b@x.com", "a@x.com", "a@x.com", "c@x.com", "c@x.com"}
	for i, id := range calls {
		if _, err := l.CheckAndRecord(ctx, Request{Identity: id, IPAddress: "10.0.0.1"}, t0.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	now := t0.Add(10 * time.Second)
	st, err := l.IdentityStats(ctx, "a@x.com", now)
	if err != nil {
		t.Fatalf("IdentityStats failed: %v", err)
	}
	if st.RequestCount != 2 || !st.Limited || len(st.Entries) != 2 || st.Entries[0].IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected identity stats %+v", st)
	}

	g, err := l.GlobalStats(ctx, now)
	if err != nil {
		t.Fatalf("GlobalStats failed: %v", err)
	}
	if g.TotalRequests != 5 || g.UniqueIdentities != 3 {
		t.Fatalf("unexpected global stats %+v", g)
	}
	want := []IdentityCount{{"a@x.com", 2}, {"c@x.com", 2}, {"b@x.com", 1}}
	if len(g.TopIdentities) != len(want) {
		t.Fatalf("unexpected top list %+v", g.TopIdentities)
	}
	for i := range want {
		if g.TopIdentities[i] != want[i] {
			t.Fatalf("top[%d] = %+v, want %+v", i, g.TopIdentities[i], want[i])
		}
	}
}

func TestConcurrentAdmissionsBounded(t *testing.T) {
	cfg := Config{Limit: 3, Window: 15 * time.Minute}
	l, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.CheckAndRecord(ctx, Request{Identity: "race@x.com"}, t0)
			if err != nil {
				t.Errorf("CheckAndRecord failed: %v", err)
				return
			}
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	// The contract tolerates one extra admission per contention window.
	if n := allowed.Load(); n < int64(cfg.Limit) || n > int64(cfg.Limit)+1 {
		t.Fatalf("expected %d..%d admissions, got %d", cfg.Limit, cfg.Limit+1, n)
	}
}

type failingStore struct {
	stores.RateLimitStore
}

func (failingStore) RecordRequest(context.Context, stores.RateLimitEntry, time.Time, int) (stores.RateLimitOutcome, error) {
	return stores.RateLimitOutcome{}, fmt.Errorf("%w: boom", stores.ErrUnavailable)
}

func TestStoreFailurePropagates(t *testing.T) {
	l := New(failingStore{}, defaultTestConfig())

	if _, err := l.CheckAndRecord(context.Background(), Request{Identity: "a@x.com"}, t0); !errors.Is(err, stores.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := l.CheckAndRecord(context.Background(), Request{}, t0); !errors.Is(err, ErrEmptyIdentity) {
		t.Fatalf("expected ErrEmptyIdentity, got %v", err)
	}
}
