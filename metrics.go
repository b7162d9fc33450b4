package goMagicLink

import (
	internalmetrics "github.com/MrEthical07/goMagicLink/internal/metrics"
)

// MetricID defines a public type used by goMagicLink APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID = internalmetrics.MetricID

const (
	// MetricRequestAllowed is an exported constant or variable used by the magic-link engine.
	MetricRequestAllowed = internalmetrics.MetricRequestAllowed
	// MetricRequestRateLimited is an exported constant or variable used by the magic-link engine.
	MetricRequestRateLimited = internalmetrics.MetricRequestRateLimited
	// MetricRequestIPThrottled is an exported constant or variable used by the magic-link engine.
	MetricRequestIPThrottled = internalmetrics.MetricRequestIPThrottled
	// MetricValidateSuccess is an exported constant or variable used by the magic-link engine.
	MetricValidateSuccess = internalmetrics.MetricValidateSuccess
	// MetricValidateExpired is an exported constant or variable used by the magic-link engine.
	MetricValidateExpired = internalmetrics.MetricValidateExpired
	// MetricValidateInvalid is an exported constant or variable used by the magic-link engine.
	MetricValidateInvalid = internalmetrics.MetricValidateInvalid
	// MetricTokenBlacklisted is an exported constant or variable used by the magic-link engine.
	MetricTokenBlacklisted = internalmetrics.MetricTokenBlacklisted
	// MetricTokenReuseDetected is an exported constant or variable used by the magic-link engine.
	MetricTokenReuseDetected = internalmetrics.MetricTokenReuseDetected
	// MetricTokenMarkedUsed is an exported constant or variable used by the magic-link engine.
	MetricTokenMarkedUsed = internalmetrics.MetricTokenMarkedUsed
	// MetricStoreError is an exported constant or variable used by the magic-link engine.
	MetricStoreError = internalmetrics.MetricStoreError
	// MetricSweepRun is an exported constant or variable used by the magic-link engine.
	MetricSweepRun = internalmetrics.MetricSweepRun
	// MetricSweepDeleted is an exported constant or variable used by the magic-link engine.
	MetricSweepDeleted = internalmetrics.MetricSweepDeleted
	// MetricValidateLatency is an exported constant or variable used by the magic-link engine.
	MetricValidateLatency = internalmetrics.MetricValidateLatency
	// MetricCheckAndRecordLatency is an exported constant or variable used by the magic-link engine.
	MetricCheckAndRecordLatency = internalmetrics.MetricCheckAndRecordLatency
)

// Metrics defines a public type used by goMagicLink APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot defines a public type used by goMagicLink APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics returns a collector; a disabled config yields one that records nothing.
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
