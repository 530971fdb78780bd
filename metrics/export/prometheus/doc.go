// Package prometheus exposes engine counters and the gate latency histogram as a
// client_golang Collector.
//
// Register a [Collector] with any prometheus.Registerer, or mount [Collector.Handler]
// for a standalone endpoint. Counter names are loanguard_*_total and the histogram is
// loanguard_gate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into prometheus.DefaultRegisterer on its own.
//   - Mutate engine state.
package prometheus
