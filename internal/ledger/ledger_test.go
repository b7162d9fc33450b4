package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
	"github.com/MrEthical07/goMagicLink/internal/stores/redisstore"
	"github.com/MrEthical07/goMagicLink/internal/stores/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var t0 = time.UnixMilli(1_700_000_000_000).UTC()

func testConfig() Config {
	return Config{
		MaxAttempts:        3,
		Expiry:             15 * time.Minute,
		ExpiringActions:    []string{"magic_link_verify", "verify"},
		BlacklistRetention: 24 * time.Hour,
	}
}

func newRedisBackend(t *testing.T) stores.Store {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client, "lt")
}

func newSQLiteBackend(t *testing.T) stores.Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "ledger.db")
	if err := sqlstore.Migrate(sqlstore.DialectSQLite, dsn); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	s, err := sqlstore.Open(context.Background(), sqlstore.DialectSQLite, dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var backends = []struct {
	name string
	open func(t *testing.T) stores.Store
}{
	{"redis", newRedisBackend},
	{"sqlite", newSQLiteBackend},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, store stores.Store)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b.open(t))
		})
	}
}

func TestAttemptsExceededBlacklistsOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store stores.Store) {
		l := New(store, testConfig())
		ctx := context.Background()
		p := Presentation{TokenID: "T1", Identity: "a@x.com", Action: "verify"}

		for i := 1; i <= 3; i++ {
			out, err := l.Validate(ctx, p, t0.Add(time.Duration(i)*time.Second))
			if err != nil {
				t.Fatalf("validate %d failed: %v", i, err)
			}
			if out.Status != StatusValid || out.Attempts != i {
				t.Fatalf("validate %d: expected Valid{%d}, got %+v", i, i, out)
			}
		}

		out, err := l.Validate(ctx, p, t0.Add(4*time.Second))
		if err != nil {
			t.Fatalf("fourth validate failed: %v", err)
		}
		if out.Status != StatusInvalid || out.Reason != ReasonAttemptsExceeded || !out.Blacklisted {
			t.Fatalf("expected attempts_exceeded with a new blacklist entry, got %+v", out)
		}

		entry, err := store.GetBlacklist(ctx, "T1")
		if err != nil {
			t.Fatalf("expected blacklist entry: %v", err)
		}
		if entry.Reason != BlacklistAttemptsExceeded || entry.Attempts != 3 || entry.ActionKind != "verify" {
			t.Fatalf("unexpected blacklist entry %+v", entry)
		}
		if !entry.ExpiresAt.Equal(t0.Add(4*time.Second + 24*time.Hour)) {
			t.Fatalf("unexpected expiresAt %v", entry.ExpiresAt)
		}

		out, err = l.Validate(ctx, p, t0.Add(5*time.Second))
		if err != nil {
			t.Fatalf("fifth validate failed: %v", err)
		}
		if out.Status != StatusInvalid || out.Reason != ReasonBlacklisted {
			t.Fatalf("expected blacklisted, got %+v", out)
		}

		rec, err := store.GetToken(ctx, "T1")
		if err != nil || rec.Attempts != 3 {
			t.Fatalf("attempts must stay at the cap, rec=%+v err=%v", rec, err)
		}
	})
}

func TestExpiredTokenIsNotBlacklisted(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store stores.Store) {
		l := New(store, testConfig())
		ctx := context.Background()
		p := Presentation{TokenID: "T2", Identity: "a@x.com", Action: "verify"}

		if _, created, err := l.Ensure(ctx, p, t0); err != nil || !created {
			t.Fatalf("Ensure: created=%v err=%v", created, err)
		}

		out, err := l.Validate(ctx, p, t0.Add(16*time.Minute))
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if out.Status != StatusExpired {
			t.Fatalf("expected Expired, got %+v", out)
		}
		if _, err := store.GetBlacklist(ctx, "T2"); !errors.Is(err, stores.ErrNotFound) {
			t.Fatalf("expiry must not blacklist, got %v", err)
		}

		rec, _ := store.GetToken(ctx, "T2")
		if rec.Attempts != 0 {
			t.Fatalf("expired presentation must not count, attempts=%d", rec.Attempts)
		}
	})
}

func TestExpiryBoundaryIsStrict(t *testing.T) {
	l := New(newRedisBackend(t), testConfig())
	ctx := context.Background()
	p := Presentation{TokenID: "T3", Identity: "a@x.com", Action: "magic_link_verify"}

	if _, _, err := l.Ensure(ctx, p, t0); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	out, err := l.Validate(ctx, p, t0.Add(15*time.Minute))
	if err != nil || out.Status != StatusValid {
		t.Fatalf("age == expiry must still be valid, got %+v err=%v", out, err)
	}
	out, err = l.Validate(ctx, p, t0.Add(15*time.Minute+time.Millisecond))
	if err != nil || out.Status != StatusExpired {
		t.Fatalf("age > expiry must be expired, got %+v err=%v", out, err)
	}
}

func TestNonExpiringActionIgnoresAge(t *testing.T) {
	l := New(newRedisBackend(t), testConfig())
	ctx := context.Background()
	p := Presentation{TokenID: "T4", Identity: "a@x.com", Action: "login"}

	if _, _, err := l.Ensure(ctx, p, t0); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	out, err := l.Validate(ctx, p, t0.Add(48*time.Hour))
	if err != nil || out.Status != StatusValid || out.Attempts != 1 {
		t.Fatalf("expected Valid{1}, got %+v err=%v", out, err)
	}
}

func TestMarkUsedRejectsEveryLaterValidate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store stores.Store) {
		l := New(store, testConfig())
		ctx := context.Background()
		p := Presentation{TokenID: "T5", Identity: "a@x.com", Action: "verify"}

		if _, err := l.MarkUsed(ctx, "T5", t0); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for untracked token, got %v", err)
		}

		if out, err := l.Validate(ctx, p, t0); err != nil || out.Status != StatusValid {
			t.Fatalf("first validate: %+v err=%v", out, err)
		}
		rec, err := l.MarkUsed(ctx, "T5", t0.Add(time.Second))
		if err != nil || !rec.Used {
			t.Fatalf("MarkUsed: %+v err=%v", rec, err)
		}
		again, err := l.MarkUsed(ctx, "T5", t0.Add(time.Minute))
		if err != nil || !again.UsedAt.Equal(t0.Add(time.Second)) {
			t.Fatalf("second MarkUsed must keep first usedAt: %+v err=%v", again, err)
		}

		for i := 0; i < 5; i++ {
			out, err := l.Validate(ctx, p, t0.Add(time.Duration(i+2)*time.Second))
			if err != nil || out.Status != StatusInvalid || out.Reason != ReasonReused {
				t.Fatalf("validate %d after use: %+v err=%v", i, out, err)
			}
		}
		if _, err := store.GetBlacklist(ctx, "T5"); !errors.Is(err, stores.ErrNotFound) {
			t.Fatalf("reuse must not blacklist, got %v", err)
		}
	})
}

func TestValidateIsPureOverState(t *testing.T) {
	l := New(newRedisBackend(t), testConfig())
	ctx := context.Background()
	p := Presentation{TokenID: "T6", Identity: "a@x.com", Action: "verify"}

	if _, err := l.Blacklist(ctx, "T6", "a@x.com", BlacklistSecurityViolation, t0); err != nil {
		t.Fatalf("Blacklist failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		out, err := l.Validate(ctx, p, t0.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("validate %d failed: %v", i, err)
		}
		if out.Status != StatusInvalid || out.Reason != ReasonBlacklisted {
			t.Fatalf("validate %d: expected blacklisted, got %+v", i, out)
		}
	}
	if _, err := l.store.GetToken(ctx, "T6"); !errors.Is(err, stores.ErrNotFound) {
		t.Fatalf("blacklisted validate must not create a record, got %v", err)
	}
}

func TestBlacklistIsIdempotent(t *testing.T) {
	l := New(newRedisBackend(t), testConfig())
	ctx := context.Background()

	if _, err := l.Validate(ctx, Presentation{TokenID: "T7", Identity: "a@x.com", Action: "verify"}, t0); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	inserted, err := l.Blacklist(ctx, "T7", "", BlacklistSecurityViolation, t0)
	if err != nil || !inserted {
		t.Fatalf("first Blacklist: inserted=%v err=%v", inserted, err)
	}
	inserted, err = l.Blacklist(ctx, "T7", "", BlacklistAttemptsExceeded, t0)
	if err != nil || inserted {
		t.Fatalf("second Blacklist: inserted=%v err=%v", inserted, err)
	}

	entry, err := l.store.GetBlacklist(ctx, "T7")
	if err != nil {
		t.Fatalf("GetBlacklist failed: %v", err)
	}
	if entry.Reason != BlacklistSecurityViolation || entry.Identity != "a@x.com" || entry.Attempts != 1 {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestMinTokenLength(t *testing.T) {
	cfg := testConfig()
	cfg.MinTokenLength = 32
	l := New(newRedisBackend(t), cfg)
	ctx := context.Background()

	out, err := l.Validate(ctx, Presentation{TokenID: "short", Identity: "a@x.com", Action: "verify"}, t0)
	if err != nil || out.Status != StatusInvalid || out.Reason != ReasonMalformed {
		t.Fatalf("expected malformed, got %+v err=%v", out, err)
	}
	if _, err := l.store.GetToken(ctx, "short"); !errors.Is(err, stores.ErrNotFound) {
		t.Fatalf("malformed token must not touch the store")
	}

	if _, err := l.Validate(ctx, Presentation{}, t0); !errors.Is(err, ErrEmptyTokenID) {
		t.Fatalf("expected ErrEmptyTokenID, got %v", err)
	}
}

func TestConcurrentValidateBlacklistsExactlyOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store stores.Store) {
		l := New(store, testConfig())
		ctx := context.Background()
		p := Presentation{TokenID: "TC", Identity: "a@x.com", Action: "verify"}

		var (
			wg          sync.WaitGroup
			valid       atomic.Int64
			blacklisted atomic.Int64
		)
		for i := 0; i < 24; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := l.Validate(ctx, p, t0)
				if err != nil {
					t.Errorf("Validate failed: %v", err)
					return
				}
				if out.Status == StatusValid {
					valid.Add(1)
				}
				if out.Blacklisted {
					blacklisted.Add(1)
				}
			}()
		}
		wg.Wait()

		if valid.Load() != 3 {
			t.Fatalf("expected exactly 3 valid presentations, got %d", valid.Load())
		}
		if blacklisted.Load() != 1 {
			t.Fatalf("expected exactly one blacklist insertion, got %d", blacklisted.Load())
		}
		rec, err := store.GetToken(ctx, "TC")
		if err != nil || rec.Attempts != 3 {
			t.Fatalf("attempts must equal the cap, rec=%+v err=%v", rec, err)
		}
	})
}

func TestIndexLikeTokenIDsDoNotDisturbOtherTokens(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store stores.Store) {
		l := New(store, testConfig())
		ctx := context.Background()

		for _, id := range []string{"ts", "exp", "r:ts", "e"} {
			out, err := l.Validate(ctx, Presentation{TokenID: id, Identity: "x@x.com", Action: "verify"}, t0)
			if err != nil {
				t.Fatalf("validate %q failed: %v", id, err)
			}
			if out.Status != StatusValid {
				t.Fatalf("validate %q: expected Valid, got %+v", id, out)
			}
			if _, err := l.Blacklist(ctx, id, "x@x.com", BlacklistSecurityViolation, t0); err != nil {
				t.Fatalf("blacklist %q failed: %v", id, err)
			}
		}

		legit := Presentation{TokenID: "8c1e4f2a-7d3b-4a9e-b6c0-2f5d8e1a3b7c", Identity: "a@x.com", Action: "verify"}
		out, err := l.Validate(ctx, legit, t0.Add(time.Second))
		if err != nil {
			t.Fatalf("validate legit failed: %v", err)
		}
		if out.Status != StatusValid || out.Attempts != 1 {
			t.Fatalf("expected Valid{1} for an unrelated token, got %+v", out)
		}
	})
}

func TestStats(t *testing.T) {
	l := New(newRedisBackend(t), testConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p := Presentation{TokenID: fmt.Sprintf("S%d", i), Identity: "a@x.com", Action: "verify"}
		if _, err := l.Validate(ctx, p, t0); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
	}
	if _, err := l.Validate(ctx, Presentation{TokenID: "S0", Identity: "a@x.com", Action: "verify"}, t0); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if _, err := l.MarkUsed(ctx, "S1", t0); err != nil {
		t.Fatalf("MarkUsed failed: %v", err)
	}
	if _, err := l.Blacklist(ctx, "S2", "a@x.com", BlacklistSecurityViolation, t0); err != nil {
		t.Fatalf("Blacklist failed: %v", err)
	}

	st, err := l.Stats(ctx, time.Hour, t0.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.TotalTokens != 4 || st.UsedTokens != 1 || st.ExpiredTokens != 3 || st.BlacklistedTokens != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.AverageAttempts != 1.25 {
		t.Fatalf("expected average 1.25, got %v", st.AverageAttempts)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{StatusValid: "valid", StatusExpired: "expired", StatusInvalid: "invalid", Status(9): "status(9)"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
