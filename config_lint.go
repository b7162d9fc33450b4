package goMagicLink

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks advisory configuration warnings.
type LintSeverity int

const (
	// LintInfo marks a setting worth knowing about.
	LintInfo LintSeverity = iota
	// LintWarn marks a setting that weakens protection.
	LintWarn
	// LintHigh marks a setting that defeats a protection outright.
	LintHigh
)

// String returns the lower-case severity name.
func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintWarn:
		return "warn"
	case LintHigh:
		return "high"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// LintWarning is one advisory finding from [Config.Lint].
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered set of warnings returned by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError folds warnings at or above min into one error, or nil when none.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, w.Code+": "+w.Message)
	}
	return fmt.Errorf("config lint (%s): %s", min, strings.Join(parts, "; "))
}

// Lint describes the lint operation and its observable behavior.
//
// Lint reports settings that pass Validate but weaken the security posture.
// Lint does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if !c.IPThrottle.Enabled {
		add("ip_throttle_disabled", LintInfo, "per-address throttling is off; only the identity limiter applies")
	}
	if c.Token.MinLength == 0 {
		add("token_length_unchecked", LintInfo, "token ids are not length-checked before store access")
	} else if c.Token.MinLength < 16 {
		add("token_length_short", LintWarn, "Token MinLength below 16 accepts guessable ids")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintWarn, "security events are not recorded")
	} else if c.Audit.BufferSize < 64 {
		add("audit_buffer_small", LintWarn, "a small audit buffer drops events under bursts")
	}
	if c.RateLimit.Limit > 20 {
		add("rate_limit_loose", LintWarn, "more than 20 link requests per window per identity")
	}
	if c.Token.MaxAttempts > 10 {
		add("max_attempts_high", LintWarn, "more than 10 presentations allowed per token")
	}
	if c.Token.Expiry > time.Hour {
		add("token_expiry_long", LintWarn, "tokens stay redeemable for over an hour")
	}
	if len(c.Token.ExpiringActions) == 0 {
		add("expiry_unenforced", LintHigh, "no action kinds are expiry-checked; tokens never expire")
	}
	if c.Blacklist.Retention < c.Token.Expiry {
		add("blacklist_shorter_than_expiry", LintHigh, "blacklist entries lapse while the token is still live")
	}

	return ws
}
