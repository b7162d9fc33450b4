package goMagicLink

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by goMagicLink APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	IPThrottle IPThrottleConfig `yaml:"ip_throttle"`
	Token      TokenConfig      `yaml:"token"`
	Blacklist  BlacklistConfig  `yaml:"blacklist"`
	Retention  RetentionConfig  `yaml:"retention"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Store      StoreConfig      `yaml:"store"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig defines a public type used by goMagicLink APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	// Limit is the number of link requests admitted per identity per Window.
	Limit       int           `yaml:"limit"`
	Window      time.Duration `yaml:"window"`
	RequestKind string        `yaml:"request_kind"`
}

/*
====================================
IP THROTTLE CONFIG
====================================
*/

// IPThrottleConfig defines a public type used by goMagicLink APIs.
//
// IPThrottleConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type IPThrottleConfig struct {
	Enabled bool          `yaml:"enabled"`
	Limit   int           `yaml:"limit"`
	Window  time.Duration `yaml:"window"`
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by goMagicLink APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Expiry      time.Duration `yaml:"expiry"`
	// ExpiringActions lists the action kinds subject to Expiry. Other
	// actions never expire through the ledger.
	ExpiringActions []string `yaml:"expiring_actions"`
	// MinLength rejects shorter token ids as malformed. Zero disables the check.
	MinLength int `yaml:"min_length"`
}

/*
====================================
BLACKLIST CONFIG
====================================
*/

// BlacklistConfig defines a public type used by goMagicLink APIs.
//
// BlacklistConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BlacklistConfig struct {
	Retention time.Duration `yaml:"retention"`
}

/*
====================================
RETENTION CONFIG
====================================
*/

// RetentionConfig defines a public type used by goMagicLink APIs.
//
// RetentionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RetentionConfig struct {
	TokenRecordRetention time.Duration `yaml:"token_record_retention"`
	AuditRetentionDays   int           `yaml:"audit_retention_days"`
	BatchSize            int           `yaml:"batch_size"`
}

// AuditRetention returns AuditRetentionDays as a duration.
func (c RetentionConfig) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by goMagicLink APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled           bool `yaml:"enabled"`
	BufferSize        int  `yaml:"buffer_size"`
	DefaultQueryLimit int  `yaml:"default_query_limit"`
	MaxQueryLimit     int  `yaml:"max_query_limit"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by goMagicLink APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"latency_histograms"`
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig defines a public type used by goMagicLink APIs.
//
// StoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StoreConfig struct {
	RedisPrefix string `yaml:"redis_prefix"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig returns a fresh copy of the reference configuration.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			Limit:       3,
			Window:      15 * time.Minute,
			RequestKind: "magic_link_request",
		},
		IPThrottle: IPThrottleConfig{
			Enabled: false,
			Limit:   10,
			Window:  5 * time.Minute,
			IdleTTL: 15 * time.Minute,
		},
		Token: TokenConfig{
			MaxAttempts:     3,
			Expiry:          15 * time.Minute,
			ExpiringActions: []string{"magic_link_verify", "verify"},
			MinLength:       0,
		},
		Blacklist: BlacklistConfig{
			Retention: 24 * time.Hour,
		},
		Retention: RetentionConfig{
			TokenRecordRetention: time.Hour,
			AuditRetentionDays:   90,
			BatchSize:            500,
		},
		Audit: AuditConfig{
			Enabled:           true,
			BufferSize:        1024,
			DefaultQueryLimit: 50,
			MaxQueryLimit:     500,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Store: StoreConfig{
			RedisPrefix: "ml",
		},
	}
}

func cloneConfig(in Config) Config {
	out := in
	out.Token.ExpiringActions = cloneStrings(in.Token.ExpiringActions)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Rate limit
	if c.RateLimit.Limit <= 0 {
		return errors.New("RateLimit Limit must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0")
	}
	if c.RateLimit.RequestKind == "" {
		return errors.New("RateLimit RequestKind must not be empty")
	}

	// IP throttle
	if c.IPThrottle.Enabled {
		if c.IPThrottle.Limit <= 0 {
			return errors.New("IPThrottle Limit must be > 0 when enabled")
		}
		if c.IPThrottle.Window <= 0 {
			return errors.New("IPThrottle Window must be > 0 when enabled")
		}
	}
	if c.IPThrottle.IdleTTL < 0 {
		return errors.New("IPThrottle IdleTTL must be >= 0")
	}

	// Token
	if c.Token.MaxAttempts <= 0 {
		return errors.New("Token MaxAttempts must be > 0")
	}
	if c.Token.Expiry <= 0 {
		return errors.New("Token Expiry must be > 0")
	}
	for _, a := range c.Token.ExpiringActions {
		if a == "" {
			return errors.New("Token ExpiringActions must not contain empty entries")
		}
	}
	if c.Token.MinLength < 0 {
		return errors.New("Token MinLength must be >= 0")
	}

	// Blacklist and retention
	if c.Blacklist.Retention <= 0 {
		return errors.New("Blacklist Retention must be > 0")
	}
	if c.Retention.TokenRecordRetention <= 0 {
		return errors.New("Retention TokenRecordRetention must be > 0")
	}
	if c.Retention.TokenRecordRetention < c.Token.Expiry {
		return errors.New("Retention TokenRecordRetention must be >= Token Expiry")
	}
	// A swept token record would otherwise restart at zero attempts while
	// its blacklist entry is already gone.
	if c.Blacklist.Retention < c.Retention.TokenRecordRetention {
		return errors.New("Blacklist Retention must be >= Retention TokenRecordRetention")
	}
	if c.Retention.AuditRetentionDays <= 0 {
		return errors.New("Retention AuditRetentionDays must be > 0")
	}
	if c.Retention.BatchSize <= 0 {
		return errors.New("Retention BatchSize must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.DefaultQueryLimit <= 0 {
		return errors.New("Audit DefaultQueryLimit must be > 0")
	}
	if c.Audit.MaxQueryLimit < c.Audit.DefaultQueryLimit {
		return errors.New("Audit MaxQueryLimit must be >= DefaultQueryLimit")
	}

	// Store
	if c.Store.RedisPrefix == "" {
		return errors.New("Store RedisPrefix must not be empty")
	}
	if strings.ContainsAny(c.Store.RedisPrefix, "{}") {
		return errors.New("Store RedisPrefix must not contain braces")
	}

	return nil
}
