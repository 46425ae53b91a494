// Package otel publishes goShield engine metrics through an OpenTelemetry
// Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and,
// for the attempt latency histogram, a bucket gauge keyed by an "le"
// attribute plus a count gauge. A single callback reads
// [goShield.Engine.MetricsSnapshot] on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
