// Package metric provides Prometheus metrics for authcore.
//
//   - prometheus.go: the metric registry, typed recording helpers and the
//     /metrics HTTP handler
//   - collector.go: a collector reporting values owned by other components
//
// Recording helpers are nil-safe so that components built without a registry
// (most unit tests) need no guards.
package metric
