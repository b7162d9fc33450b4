package goMagicLink

import (
	"context"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricRequestAllowed)

	if got := m.Value(MetricRequestAllowed); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestEngineCountsRequestOutcomes(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) {
		c.IPThrottle.Enabled = true
		c.IPThrottle.Limit = 5
	})
	ctx := WithClientIP(context.Background(), "192.0.2.10")

	for i := 0; i < 6; i++ {
		if _, err := e.CheckAndRecord(ctx, "metrics@example.com"); err != nil {
			t.Fatalf("CheckAndRecord failed: %v", err)
		}
	}

	snap := e.MetricsSnapshot()
	if got := snap.Counters[MetricRequestAllowed]; got != 3 {
		t.Fatalf("expected 3 allowed, got %d", got)
	}
	if got := snap.Counters[MetricRequestRateLimited]; got != 2 {
		t.Fatalf("expected 2 rate limited, got %d", got)
	}
	if got := snap.Counters[MetricRequestIPThrottled]; got != 1 {
		t.Fatalf("expected 1 ip throttled, got %d", got)
	}
}

func TestEngineCountsValidationOutcomes(t *testing.T) {
	e, clock, _ := newTestEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := e.ValidateToken(ctx, "M1", "metrics@example.com", "verify"); err != nil {
			t.Fatalf("ValidateToken failed: %v", err)
		}
	}

	if _, err := e.ValidateToken(ctx, "M2", "metrics@example.com", "verify"); err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if err := e.MarkTokenUsed(ctx, "M2", ""); err != nil {
		t.Fatalf("MarkTokenUsed failed: %v", err)
	}
	if _, err := e.ValidateToken(ctx, "M2", "metrics@example.com", "verify"); err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	if _, err := e.EnsureToken(ctx, "M3", "metrics@example.com", "verify"); err != nil {
		t.Fatalf("EnsureToken failed: %v", err)
	}
	clock.Advance(20 * time.Minute)
	if _, err := e.ValidateToken(ctx, "M3", "metrics@example.com", "verify"); err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	snap := e.MetricsSnapshot()
	want := map[MetricID]uint64{
		MetricValidateSuccess:    4,
		MetricValidateInvalid:    2,
		MetricValidateExpired:    1,
		MetricTokenBlacklisted:   1,
		MetricTokenReuseDetected: 1,
		MetricTokenMarkedUsed:    1,
	}
	for id, n := range want {
		if got := snap.Counters[id]; got != n {
			t.Fatalf("metric %d: expected %d, got %d", id, n, got)
		}
	}
}

func TestEngineLatencyHistogramsOptIn(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	if _, err := e.CheckAndRecord(context.Background(), "lat@example.com"); err != nil {
		t.Fatalf("CheckAndRecord failed: %v", err)
	}
	if len(e.MetricsSnapshot().Histograms) != 0 {
		t.Fatal("histograms should be empty unless enabled")
	}

	e2, _, _ := newTestEngine(t, nil, func(b *Builder) {
		b.WithLatencyHistograms(true)
	})
	if _, err := e2.CheckAndRecord(context.Background(), "lat@example.com"); err != nil {
		t.Fatalf("CheckAndRecord failed: %v", err)
	}
	if _, err := e2.ValidateToken(context.Background(), "L1", "lat@example.com", "verify"); err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	snap := e2.MetricsSnapshot()
	for _, id := range []MetricID{MetricCheckAndRecordLatency, MetricValidateLatency} {
		var total uint64
		for _, n := range snap.Histograms[id] {
			total += n
		}
		if total != 1 {
			t.Fatalf("metric %d: expected one observation, got %d", id, total)
		}
	}
}

func TestEngineSweepMetrics(t *testing.T) {
	e, clock, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := e.CheckAndRecord(ctx, "sweepm@example.com"); err != nil {
		t.Fatalf("CheckAndRecord failed: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := e.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricSweepRun] != 1 || snap.Counters[MetricSweepDeleted] != 1 {
		t.Fatalf("unexpected sweep counters: run=%d deleted=%d",
			snap.Counters[MetricSweepRun], snap.Counters[MetricSweepDeleted])
	}
}

func TestEngineMetricsDisabledSnapshotIsEmpty(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) {
		c.Metrics.Enabled = false
	})
	if _, err := e.CheckAndRecord(context.Background(), "off@example.com"); err != nil {
		t.Fatalf("CheckAndRecord failed: %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricRequestAllowed]; got != 0 {
		t.Fatalf("expected 0 with metrics disabled, got %d", got)
	}
}
