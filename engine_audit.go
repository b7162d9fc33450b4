package goMagicLink

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goMagicLink/internal"
	"github.com/MrEthical07/goMagicLink/internal/observability"
	"go.uber.org/zap"
)

// Audit actions written by the engine. Collaborators may append events
// with other action strings through [Engine.AppendAudit].
const (
	AuditActionRequestSent      = "request_sent"
	AuditActionValidateAttempt  = "validate_attempt"
	AuditActionValidateSuccess  = "validate_success"
	AuditActionValidateFailure  = "validate_failure"
	AuditActionTokenUsed        = "token_used"
	AuditActionTokenBlacklisted = "token_blacklisted"
	AuditActionRateLimited      = "rate_limited"
	AuditActionCleanup          = "cleanup"
)

// AuditErrorCode is the stable errorDetail value written for engine errors.
type AuditErrorCode string

const (
	auditErrRateLimited   AuditErrorCode = "rate_limited"
	auditErrIPRateLimited AuditErrorCode = "ip_rate_limited"
	auditErrTokenNotFound AuditErrorCode = "token_not_found"
	auditErrTokenExpired  AuditErrorCode = "token_expired"
	auditErrTokenInvalid  AuditErrorCode = "token_invalid"
	auditErrUnavailable   AuditErrorCode = "backend_unavailable"
	auditErrInternal      AuditErrorCode = "internal_error"
)

type auditEvent struct {
	action    string
	success   bool
	identity  string
	tokenID   string
	requestID string
	// detail overrides the code derived from err.
	detail   string
	err      error
	metadata func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, ev auditEvent) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if ev.metadata != nil {
		metadata = ev.metadata()
	}

	requestID := ev.requestID
	if requestID == "" {
		requestID = requestIDFromContext(ctx)
	}

	event := AuditEvent{
		ID:        internal.NewID(),
		Timestamp: e.now(),
		Identity:  ev.identity,
		Action:    ev.action,
		Success:   ev.success,
		IPAddress: clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		TokenID:   ev.tokenID,
		RequestID: requestID,
		Metadata:  metadata,
	}
	switch {
	case ev.detail != "":
		event.ErrorDetail = ev.detail
	case ev.err != nil:
		event.ErrorDetail = string(auditErrorCode(ev.err))
	}

	e.audit.Record(event)
}

func (e *Engine) emitRateLimit(ctx context.Context, identity, requestID, scope string, res RateLimitResult) {
	e.emitAudit(ctx, auditEvent{
		action:    AuditActionRateLimited,
		identity:  identity,
		requestID: requestID,
		err:       res.Err(),
		metadata: func() map[string]string {
			return map[string]string{
				"scope":          scope,
				"count":          strconv.Itoa(res.Count),
				"limit":          strconv.Itoa(res.Limit),
				"retry_after_ms": strconv.FormatInt(res.RetryAfterMs(), 10),
			}
		},
	})
}

// onAuditError is the diagnostic channel for audit persistence failures.
// They are logged, reported and forwarded, never returned to callers.
func (e *Engine) onAuditError(next AuditErrorHandler) AuditErrorHandler {
	return func(err error, event AuditEvent) {
		e.logger.Error("audit write failed",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("action", event.Action),
		)
		observability.CaptureError(err, map[string]string{
			"component": "audit",
			"action":    event.Action,
		})
		if next != nil {
			next(err, event)
		}
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrIPRateLimited):
		return auditErrIPRateLimited
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenNotFound):
		return auditErrTokenNotFound
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
