// Package types provides shared data structures for the restore daemon.
//
// This package defines the persisted model and the live-window snapshot
// types used across all components, ensuring consistent data structures.
//
// Persisted Types:
//   - AppRecord: Per-class application record owning instance records
//   - InstanceRecord: One remembered window of a class
//   - MonitorInfo: Monitor identity and layout fingerprint
//   - Geometry, PercentGeometry: Window placement
//
// Live Types:
//   - WindowInfo: Snapshot of a live window's identity and placement
//   - StateFlags: Boolean window states (maximized, sticky, ...)
//
// Example Usage:
//
//	rec := &types.InstanceRecord{
//	    ID:        string(id.NewInstanceID()),
//	    Title:     "project - Editor",
//	    Workspace: 2,
//	}
package types
