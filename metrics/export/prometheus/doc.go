// Package prometheus exposes goMFA engine metrics through
// prometheus/client_golang.
//
// [PrometheusExporter] is a collector: values are read from the engine's
// snapshot on every scrape. Counter names are gomfa_*_total; the single
// histogram is gomfa_second_factor_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
