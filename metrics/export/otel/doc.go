// Package otel exports goMFA counters and the second-factor latency histogram
// as OpenTelemetry observable instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per cumulative histogram bucket. A single callback
// reads [goMFA.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
