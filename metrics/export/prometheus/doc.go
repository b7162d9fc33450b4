// Package prometheus serves goMagicLink engine metrics in Prometheus text
// exposition format.
//
// [NewExporter] wraps an [goMagicLink.Engine]; mount [Exporter.Handler] on
// the metrics route. Counters are named magiclink_*_total. Latency
// histograms appear only when the engine records them.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
