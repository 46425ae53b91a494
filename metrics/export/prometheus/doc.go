// Package prometheus serves goShield engine metrics in the Prometheus text
// exposition format.
//
// [NewExporter] takes a [*goShield.Engine] (or any [MetricsSource]); mount
// [Exporter.Handler] on the scrape path. Counters are named
// goshield_*_total and the attempt latency histogram is
// goshield_attempt_latency_seconds.
//
// # What this package must NOT do
//
//   - Register anything in a global registry.
//   - Mutate engine state.
package prometheus
