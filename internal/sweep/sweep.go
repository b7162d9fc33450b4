// Package sweep deletes aged rows across the rate-limit, token, blacklist and
// audit tables.
//
// Every deletion is keyed by primary id, bounded by a batch size and
// repeated until a short batch comes back, so a sweep is idempotent and
// safe to run beside live traffic.
package sweep

import (
	"context"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
)

// Config holds retention horizons.
type Config struct {
	// RateLimitWindow is the limiter window; entries older than twice this are removed.
	RateLimitWindow      time.Duration
	TokenRecordRetention time.Duration
	AuditRetention       time.Duration
	BatchSize            int
}

// Report counts rows removed by one sweep.
type Report struct {
	DeletedRateLimit    int64
	DeletedTokenRecords int64
	DeletedBlacklist    int64
	DeletedAuditEvents  int64
}

// Total returns the number of rows removed.
func (r Report) Total() int64 {
	return r.DeletedRateLimit + r.DeletedTokenRecords + r.DeletedBlacklist + r.DeletedAuditEvents
}

// Sweeper runs retention deletes against a Store.
type Sweeper struct {
	store  stores.Store
	config Config
}

// New creates a [Sweeper].
func New(store stores.Store, cfg Config) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Sweeper{store: store, config: cfg}
}

// Sweep removes everything past its horizon at now. On error the report
// holds the counts deleted before the failure.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Report, error) {
	var (
		r   Report
		err error
	)

	r.DeletedRateLimit, err = s.drain(ctx, func(ctx context.Context, batch int) (int64, error) {
		return s.store.DeleteRateLimitBefore(ctx, now.Add(-2*s.config.RateLimitWindow), batch)
	})
	if err != nil {
		return r, err
	}

	r.DeletedTokenRecords, err = s.drain(ctx, func(ctx context.Context, batch int) (int64, error) {
		return s.store.DeleteTokensBefore(ctx, now.Add(-s.config.TokenRecordRetention), batch)
	})
	if err != nil {
		return r, err
	}

	r.DeletedBlacklist, err = s.drain(ctx, func(ctx context.Context, batch int) (int64, error) {
		return s.store.DeleteExpiredBlacklist(ctx, now, batch)
	})
	if err != nil {
		return r, err
	}

	r.DeletedAuditEvents, err = s.drain(ctx, func(ctx context.Context, batch int) (int64, error) {
		return s.store.DeleteAuditBefore(ctx, now.Add(-s.config.AuditRetention), batch)
	})
	return r, err
}

func (s *Sweeper) drain(ctx context.Context, del func(context.Context, int) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := del(ctx, s.config.BatchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(s.config.BatchSize) {
			return total, nil
		}
	}
}

// Run calls fn every interval until ctx is done. fn is called once
// immediately.
func Run(ctx context.Context, every time.Duration, fn func(context.Context)) {
	fn(ctx)
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
