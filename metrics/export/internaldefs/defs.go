package internaldefs

import (
	goMagicLink "github.com/MrEthical07/goMagicLink"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goMagicLink.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   goMagicLink.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in snapshot order.
var CounterDefs = []CounterDef{
	{ID: goMagicLink.MetricRequestAllowed, Name: "magiclink_request_allowed_total", Help: "Link requests admitted by the identity limiter."},
	{ID: goMagicLink.MetricRequestRateLimited, Name: "magiclink_request_rate_limited_total", Help: "Link requests denied by the identity limiter."},
	{ID: goMagicLink.MetricRequestIPThrottled, Name: "magiclink_request_ip_throttled_total", Help: "Link requests denied by the per-address throttle."},
	{ID: goMagicLink.MetricValidateSuccess, Name: "magiclink_validate_success_total", Help: "Token presentations judged valid."},
	{ID: goMagicLink.MetricValidateExpired, Name: "magiclink_validate_expired_total", Help: "Token presentations judged expired."},
	{ID: goMagicLink.MetricValidateInvalid, Name: "magiclink_validate_invalid_total", Help: "Token presentations judged invalid."},
	{ID: goMagicLink.MetricTokenBlacklisted, Name: "magiclink_token_blacklisted_total", Help: "Blacklist entries created."},
	{ID: goMagicLink.MetricTokenReuseDetected, Name: "magiclink_token_reuse_detected_total", Help: "Presentations of tokens already marked used."},
	{ID: goMagicLink.MetricTokenMarkedUsed, Name: "magiclink_token_marked_used_total", Help: "Tokens sealed after sign-in."},
	{ID: goMagicLink.MetricStoreError, Name: "magiclink_store_error_total", Help: "Store operations that failed."},
	{ID: goMagicLink.MetricSweepRun, Name: "magiclink_sweep_run_total", Help: "Retention sweeps executed."},
	{ID: goMagicLink.MetricSweepDeleted, Name: "magiclink_sweep_deleted_total", Help: "Rows removed by retention sweeps."},
}

// HistogramDefs lists the exported latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goMagicLink.MetricValidateLatency, Name: "magiclink_validate_latency_seconds", Help: "ValidateToken latency."},
	{ID: goMagicLink.MetricCheckAndRecordLatency, Name: "magiclink_check_and_record_latency_seconds", Help: "CheckAndRecord latency."},
}

// AuditDroppedName is the counter for events discarded by the audit buffer.
const AuditDroppedName = "magiclink_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Audit events dropped because the audit queue was full."

// HistogramBounds are the upper bucket bounds in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bound in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, n := range raw {
		running += n
		out[i] = running
	}
	return out
}
