// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Feed connection state, reconnects and status records
//   - Message rates per market and event category
//   - Router drops and writer batch sizes and latencies
//   - Cache publish failures and queue drops
//
// A nil *Metrics is valid and records nothing, so components can be used
// without a registry in tests.
package metrics
