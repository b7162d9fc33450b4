package goMagicLink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goMagicLink/internal"
	internalaudit "github.com/MrEthical07/goMagicLink/internal/audit"
	"github.com/MrEthical07/goMagicLink/internal/ledger"
	"github.com/MrEthical07/goMagicLink/internal/limiters"
	"github.com/MrEthical07/goMagicLink/internal/rate"
	"github.com/MrEthical07/goMagicLink/internal/stores"
	"github.com/MrEthical07/goMagicLink/internal/sweep"
	"go.uber.org/zap"
)

// Engine defines a public type used by goMagicLink APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config Config
	store  stores.Store
	logger *zap.Logger
	clock  func() time.Time

	limiter     *rate.Limiter
	ipThrottle  *limiters.IPThrottle
	stopJanitor context.CancelFunc
	ledger      *ledger.Ledger
	audit       *internalaudit.Trail
	auditLog    *internalaudit.Log
	sweeper     *sweep.Sweeper
	metrics     *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close stops background work and drains buffered audit events into their sinks. It does not close the store client.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.stopJanitor != nil {
		e.stopJanitor()
	}
	if e.audit != nil {
		e.audit.Seal()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped returns the number of events discarded because the audit buffer was full.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping describes the ping operation and its observable behavior.
//
// Ping checks store connectivity and returns ErrStoreUnavailable on failure.
// Ping does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return e.storeFailure("ping", err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

/*
====================================
RATE LIMITING
====================================
*/

// CheckAndRecord describes the checkandrecord operation and its observable behavior.
//
// CheckAndRecord admits a link request for identity when it is under its window quota and records it. A denial is returned as RateLimitResult{Allowed: false}; only store failures are errors.
// CheckAndRecord does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CheckAndRecord(ctx context.Context, identity string) (RateLimitResult, error) {
	if e == nil || e.limiter == nil {
		return RateLimitResult{}, ErrEngineNotReady
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return RateLimitResult{}, ErrInvalidIdentity
	}

	start := time.Now()
	defer e.observe(MetricCheckAndRecordLatency, start)

	now := e.now()
	ip := clientIPFromContext(ctx)
	requestID := requestIDFromContext(ctx)
	if requestID == "" {
		requestID = internal.NewID()
	}

	if ok, wait := e.ipThrottle.Allow(ip, now); !ok {
		e.metricInc(MetricRequestIPThrottled)
		res := RateLimitResult{
			Allowed:       false,
			Limit:         e.config.IPThrottle.Limit,
			RetryAfter:    wait,
			NextAllowedAt: now.Add(wait),
			ThrottledByIP: true,
		}
		e.emitRateLimit(ctx, identity, requestID, "ip", res)
		return res, nil
	}

	out, err := e.limiter.CheckAndRecord(ctx, rate.Request{
		Identity:  identity,
		IPAddress: ip,
		UserAgent: userAgentFromContext(ctx),
		RequestID: requestID,
	}, now)
	if err != nil {
		return RateLimitResult{}, e.storeFailure("check_and_record", err, zap.String("identity", identity))
	}

	res := rateResult(out, now)
	if !res.Allowed {
		e.metricInc(MetricRequestRateLimited)
		e.emitRateLimit(ctx, identity, requestID, "identity", res)
		return res, nil
	}

	e.metricInc(MetricRequestAllowed)
	e.emitAudit(ctx, auditEvent{
		action:    AuditActionRequestSent,
		success:   true,
		identity:  identity,
		requestID: requestID,
		metadata: func() map[string]string {
			return map[string]string{
				"count": strconv.Itoa(res.Count),
				"limit": strconv.Itoa(res.Limit),
			}
		},
	})
	return res, nil
}

// CheckRateLimit describes the checkratelimit operation and its observable behavior.
//
// CheckRateLimit reports what CheckAndRecord would decide for identity without recording anything.
// CheckRateLimit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CheckRateLimit(ctx context.Context, identity string) (RateLimitResult, error) {
	if e == nil || e.limiter == nil {
		return RateLimitResult{}, ErrEngineNotReady
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return RateLimitResult{}, ErrInvalidIdentity
	}

	now := e.now()
	out, err := e.limiter.Check(ctx, identity, now)
	if err != nil {
		return RateLimitResult{}, e.storeFailure("check_rate_limit", err, zap.String("identity", identity))
	}
	return rateResult(out, now), nil
}

// RateLimitStatus describes the ratelimitstatus operation and its observable behavior.
//
// RateLimitStatus returns the in-window entries and limit state for identity.
// RateLimitStatus does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RateLimitStatus(ctx context.Context, identity string) (RateLimitStatus, error) {
	if e == nil || e.limiter == nil {
		return RateLimitStatus{}, ErrEngineNotReady
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return RateLimitStatus{}, ErrInvalidIdentity
	}

	st, err := e.limiter.IdentityStats(ctx, identity, e.now())
	if err != nil {
		return RateLimitStatus{}, e.storeFailure("rate_limit_status", err, zap.String("identity", identity))
	}
	return st, nil
}

// RateLimitStats describes the ratelimitstats operation and its observable behavior.
//
// RateLimitStats aggregates the current window across identities, including the ten busiest.
// RateLimitStats does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RateLimitStats(ctx context.Context) (RateLimitStats, error) {
	if e == nil || e.limiter == nil {
		return RateLimitStats{}, ErrEngineNotReady
	}
	st, err := e.limiter.GlobalStats(ctx, e.now())
	if err != nil {
		return RateLimitStats{}, e.storeFailure("rate_limit_stats", err)
	}
	return st, nil
}

func rateResult(r rate.Result, now time.Time) RateLimitResult {
	res := RateLimitResult{
		Allowed:    r.Allowed,
		Count:      r.Count,
		Limit:      r.Limit,
		RetryAfter: r.RetryAfter,
	}
	if !r.Allowed {
		res.NextAllowedAt = now.Add(r.RetryAfter)
	} else {
		res.NextAllowedAt = now
	}
	return res
}

/*
====================================
TOKEN LEDGER
====================================
*/

// ValidateToken describes the validatetoken operation and its observable behavior.
//
// ValidateToken records one presentation of tokenID and returns Valid, Expired or Invalid with a reason. Checks run in order: blacklist, reuse, attempt cap, expiry. Only store failures are errors.
// ValidateToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateToken(ctx context.Context, tokenID, identity, action string) (ValidationResult, error) {
	if e == nil || e.ledger == nil {
		return ValidationResult{}, ErrEngineNotReady
	}
	if tokenID == "" {
		return ValidationResult{}, ErrInvalidTokenID
	}

	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	out, err := e.ledger.Validate(ctx, ledger.Presentation{
		TokenID:   tokenID,
		Identity:  identity,
		Action:    action,
		IPAddress: clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}, e.now())
	if err != nil {
		err = e.storeFailure("validate_token", err, zap.String("token_id", tokenID))
		e.emitAudit(ctx, auditEvent{
			action:   AuditActionValidateAttempt,
			identity: identity,
			tokenID:  tokenID,
			err:      err,
			metadata: actionMetadata(action),
		})
		return ValidationResult{}, err
	}

	res := ValidationResult{
		Status:      out.Status,
		Reason:      out.Reason,
		Attempts:    out.Attempts,
		MaxAttempts: e.config.Token.MaxAttempts,
		Blacklisted: out.Blacklisted,
	}

	switch res.Status {
	case StatusValid:
		e.metricInc(MetricValidateSuccess)
	case StatusExpired:
		e.metricInc(MetricValidateExpired)
	default:
		e.metricInc(MetricValidateInvalid)
		if res.Reason == ReasonReused {
			e.metricInc(MetricTokenReuseDetected)
		}
	}

	if res.Blacklisted {
		e.metricInc(MetricTokenBlacklisted)
		e.logger.Info("token blacklisted",
			zap.String("token_id", tokenID),
			zap.String("identity", identity),
			zap.String("reason", BlacklistReasonAttemptsExceeded),
			zap.Int("attempts", res.Attempts),
		)
		e.emitAudit(ctx, auditEvent{
			action:   AuditActionTokenBlacklisted,
			success:  true,
			identity: identity,
			tokenID:  tokenID,
			metadata: func() map[string]string {
				return map[string]string{
					"reason":   BlacklistReasonAttemptsExceeded,
					"attempts": strconv.Itoa(res.Attempts),
				}
			},
		})
	}

	ev := auditEvent{
		action:   AuditActionValidateSuccess,
		success:  true,
		identity: identity,
		tokenID:  tokenID,
		metadata: func() map[string]string {
			m := actionMetadata(action)()
			m["attempts"] = strconv.Itoa(res.Attempts)
			return m
		},
	}
	if !res.Valid() {
		ev.action = AuditActionValidateFailure
		ev.success = false
		ev.detail = validationDetail(res)
	}
	e.emitAudit(ctx, ev)

	return res, nil
}

// MarkTokenUsed describes the marktokenused operation and its observable behavior.
//
// MarkTokenUsed seals tokenID after a successful sign-in. Every later ValidateToken returns Invalid{reused}. It returns ErrTokenNotFound for untracked tokens; repeated calls keep the first use time.
// MarkTokenUsed does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MarkTokenUsed(ctx context.Context, tokenID, identity string) error {
	if e == nil || e.ledger == nil {
		return ErrEngineNotReady
	}
	if tokenID == "" {
		return ErrInvalidTokenID
	}

	rec, err := e.ledger.MarkUsed(ctx, tokenID, e.now())
	if errors.Is(err, ledger.ErrNotFound) {
		e.emitAudit(ctx, auditEvent{
			action:   AuditActionTokenUsed,
			identity: identity,
			tokenID:  tokenID,
			err:      ErrTokenNotFound,
		})
		return ErrTokenNotFound
	}
	if err != nil {
		return e.storeFailure("mark_token_used", err, zap.String("token_id", tokenID))
	}

	e.metricInc(MetricTokenMarkedUsed)
	if identity == "" {
		identity = rec.Identity
	}
	e.emitAudit(ctx, auditEvent{
		action:   AuditActionTokenUsed,
		success:  true,
		identity: identity,
		tokenID:  tokenID,
		metadata: func() map[string]string {
			return map[string]string{
				"used_at":  rec.UsedAt.Format(time.RFC3339Nano),
				"attempts": strconv.Itoa(rec.Attempts),
			}
		},
	})
	return nil
}

// EnsureToken describes the ensuretoken operation and its observable behavior.
//
// EnsureToken creates the ledger record for tokenID when absent (attempts 0, unused) and returns the stored record. It is a no-op for known tokens.
// EnsureToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EnsureToken(ctx context.Context, tokenID, identity, action string) (TokenRecord, error) {
	if e == nil || e.ledger == nil {
		return TokenRecord{}, ErrEngineNotReady
	}
	if tokenID == "" {
		return TokenRecord{}, ErrInvalidTokenID
	}

	rec, _, err := e.ledger.Ensure(ctx, ledger.Presentation{
		TokenID:   tokenID,
		Identity:  identity,
		Action:    action,
		IPAddress: clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}, e.now())
	if err != nil {
		return TokenRecord{}, e.storeFailure("ensure_token", err, zap.String("token_id", tokenID))
	}
	return rec, nil
}

// BlacklistToken describes the blacklisttoken operation and its observable behavior.
//
// BlacklistToken rejects tokenID until the blacklist retention elapses. It reports whether this call created the entry; blacklisting an already-listed token is a no-op.
// BlacklistToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) BlacklistToken(ctx context.Context, tokenID, identity, reason string) (bool, error) {
	if e == nil || e.ledger == nil {
		return false, ErrEngineNotReady
	}
	if tokenID == "" {
		return false, ErrInvalidTokenID
	}
	if reason == "" {
		reason = BlacklistReasonSecurityViolation
	}

	inserted, err := e.ledger.Blacklist(ctx, tokenID, identity, reason, e.now())
	if err != nil {
		return false, e.storeFailure("blacklist_token", err, zap.String("token_id", tokenID))
	}
	if !inserted {
		return false, nil
	}

	e.metricInc(MetricTokenBlacklisted)
	e.logger.Info("token blacklisted",
		zap.String("token_id", tokenID),
		zap.String("identity", identity),
		zap.String("reason", reason),
	)
	e.emitAudit(ctx, auditEvent{
		action:   AuditActionTokenBlacklisted,
		success:  true,
		identity: identity,
		tokenID:  tokenID,
		metadata: func() map[string]string {
			return map[string]string{"reason": reason}
		},
	})
	return true, nil
}

// TokenStats describes the tokenstats operation and its observable behavior.
//
// TokenStats summarises tokens created within window: totals, used, expired, active blacklist entries and average attempts.
// TokenStats does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) TokenStats(ctx context.Context, window time.Duration) (TokenStats, error) {
	if e == nil || e.ledger == nil {
		return TokenStats{}, ErrEngineNotReady
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	st, err := e.ledger.Stats(ctx, window, e.now())
	if err != nil {
		return TokenStats{}, e.storeFailure("token_stats", err)
	}
	return st, nil
}

func validationDetail(r ValidationResult) string {
	if r.Status == StatusExpired {
		return "expired"
	}
	return string(r.Reason)
}

func actionMetadata(action string) func() map[string]string {
	return func() map[string]string {
		m := make(map[string]string, 2)
		if action != "" {
			m["action_kind"] = action
		}
		return m
	}
}

/*
====================================
AUDIT
====================================
*/

// AppendAudit describes the appendaudit operation and its observable behavior.
//
// AppendAudit queues event for the audit sinks. It never blocks and never fails; events are dropped when the buffer is full or audit is disabled. Missing id, timestamp, address and user agent are filled from the engine clock and ctx.
// AppendAudit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AppendAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.ID == "" {
		event.ID = internal.NewID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if event.IPAddress == "" {
		event.IPAddress = clientIPFromContext(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = userAgentFromContext(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestIDFromContext(ctx)
	}
	e.audit.Record(event)
}

// QueryAudit describes the queryaudit operation and its observable behavior.
//
// QueryAudit returns persisted events matching filter, newest first. A zero limit selects the configured default; larger limits are capped.
// QueryAudit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	if e == nil || e.auditLog == nil {
		return nil, ErrEngineNotReady
	}
	events, err := e.auditLog.Query(ctx, filter)
	if err != nil {
		return nil, e.storeFailure("query_audit", err)
	}
	return events, nil
}

// AuditStats describes the auditstats operation and its observable behavior.
//
// AuditStats aggregates persisted events within window, optionally restricted to action.
// AuditStats does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditStats(ctx context.Context, window time.Duration, action string) (AuditStats, error) {
	if e == nil || e.auditLog == nil {
		return AuditStats{}, ErrEngineNotReady
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	st, err := e.auditLog.Stats(ctx, window, action, e.now())
	if err != nil {
		return AuditStats{}, e.storeFailure("audit_stats", err)
	}
	return st, nil
}

/*
====================================
RETENTION
====================================
*/

// Sweep describes the sweep operation and its observable behavior.
//
// Sweep deletes rate-limit entries older than twice the window, token records past retention, expired blacklist entries and audit events past retention, then appends a cleanup audit event with the counts. On error the report holds what was deleted before the failure.
// Sweep does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	if e == nil || e.sweeper == nil {
		return SweepReport{}, ErrEngineNotReady
	}

	report, err := e.sweeper.Sweep(ctx, e.now())
	e.metricInc(MetricSweepRun)
	if e.metrics != nil {
		e.metrics.Add(MetricSweepDeleted, uint64(report.Total()))
	}

	fields := []zap.Field{
		zap.Int64("rate_limit", report.DeletedRateLimit),
		zap.Int64("token_records", report.DeletedTokenRecords),
		zap.Int64("blacklist", report.DeletedBlacklist),
		zap.Int64("audit_events", report.DeletedAuditEvents),
	}
	ev := auditEvent{
		action:  AuditActionCleanup,
		success: err == nil,
		metadata: func() map[string]string {
			return map[string]string{
				"deleted_rate_limit":    strconv.FormatInt(report.DeletedRateLimit, 10),
				"deleted_token_records": strconv.FormatInt(report.DeletedTokenRecords, 10),
				"deleted_blacklist":     strconv.FormatInt(report.DeletedBlacklist, 10),
				"deleted_audit_events":  strconv.FormatInt(report.DeletedAuditEvents, 10),
			}
		},
	}

	if err != nil {
		err = e.storeFailure("sweep", err, fields...)
		ev.err = err
		e.emitAudit(ctx, ev)
		return report, err
	}

	e.logger.Info("retention sweep completed", fields...)
	e.emitAudit(ctx, ev)
	return report, nil
}

/*
====================================
ERRORS
====================================
*/

// storeFailure logs err and maps it onto ErrStoreUnavailable.
func (e *Engine) storeFailure(op string, err error, fields ...zap.Field) error {
	e.metricInc(MetricStoreError)
	e.logger.Warn("store operation failed",
		append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)...,
	)
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
