// Package monitoring exposes Prometheus metrics for the restore engine.
//
// Metrics cover the launch state machine (spawned, crashed, timed out,
// resolved, pending gauge), position restoration attempts, reconciler
// removals and store saves. The status HTTP server serves them at /metrics.
package monitoring
