package goMagicLink

import (
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores/redisstore"
	"github.com/MrEthical07/goMagicLink/internal/stores/sqlstore"
)

type SecurityReport struct {
	Backend                 string
	RequestLimit            int
	RequestWindow           time.Duration
	IPThrottleActive        bool
	IPThrottleLimit         int
	IPThrottleWindow        time.Duration
	MaxAttempts             int
	TokenExpiry             time.Duration
	ExpiringActions         []string
	TokenLengthChecked      bool
	MinTokenLength          int
	BlacklistRetention      time.Duration
	TokenRecordRetention    time.Duration
	AuditActive             bool
	AuditRetention          time.Duration
	MetricsActive           bool
	LatencyHistogramsActive bool
	LintWarnings            []string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		Backend:                 backendName(e),
		RequestLimit:            e.config.RateLimit.Limit,
		RequestWindow:           e.config.RateLimit.Window,
		IPThrottleActive:        e.ipThrottle != nil,
		IPThrottleLimit:         e.config.IPThrottle.Limit,
		IPThrottleWindow:        e.config.IPThrottle.Window,
		MaxAttempts:             e.config.Token.MaxAttempts,
		TokenExpiry:             e.config.Token.Expiry,
		ExpiringActions:         cloneStrings(e.config.Token.ExpiringActions),
		TokenLengthChecked:      e.config.Token.MinLength > 0,
		MinTokenLength:          e.config.Token.MinLength,
		BlacklistRetention:      e.config.Blacklist.Retention,
		TokenRecordRetention:    e.config.Retention.TokenRecordRetention,
		AuditActive:             e.audit != nil,
		AuditRetention:          e.config.Retention.AuditRetention(),
		MetricsActive:           e.metrics.Enabled(),
		LatencyHistogramsActive: e.metrics.LatencyEnabled(),
		LintWarnings:            e.config.Lint().Codes(),
	}
}

func backendName(e *Engine) string {
	switch s := e.store.(type) {
	case *redisstore.Store:
		return "redis"
	case *sqlstore.Store:
		return string(s.Dialect())
	default:
		return "custom"
	}
}
