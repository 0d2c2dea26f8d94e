package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	// Launch orchestration
	LaunchesSpawned  prometheus.Counter
	LaunchesCrashed  prometheus.Counter
	LaunchesTimedOut prometheus.Counter
	LaunchesResolved *prometheus.CounterVec
	LaunchesPending  prometheus.Gauge

	// Position restoration
	RestoreAttempts prometheus.Counter
	RestoreFailures prometheus.Counter

	// Matching
	MatchOutcomes *prometheus.CounterVec

	// Reconciliation
	InstancesRemoved prometheus.Counter
	ClassMigrations  prometheus.Counter

	// Store
	StoreSaves      prometheus.Counter
	StoreSaveErrors prometheus.Counter

	// Windows
	TrackedWindows prometheus.Gauge

	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		LaunchesSpawned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rememberd_launches_spawned_total",
			Help: "Total processes spawned by the launch orchestrator",
		}),
		LaunchesCrashed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rememberd_launches_crashed_total",
			Help: "Launches that exited early with a nonzero status",
		}),
		LaunchesTimedOut: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rememberd_launches_timed_out_total",
			Help: "Launches that reached their timeout without a matching window",
		}),
		LaunchesResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rememberd_launches_resolved_total",
			Help: "Launches resolved by a matching window, by phase",
		}, []string{"phase"}), // "pending" or "grace"
		LaunchesPending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rememberd_launches_pending",
			Help: "Outstanding spawns still awaiting a window",
		}),

		RestoreAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rememberd_restore_attempts_total",
			Help: "Placement attempts applied to live windows",
		}),
		RestoreFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rememberd_restore_failures_total",
			Help: "Placement attempts aborted mid-sequence",
		}),

		MatchOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rememberd_match_outcomes_total",
			Help: "Identity matcher outcomes",
		}, []string{"outcome"}), // "exact", "scored", "fallback", "created"

		InstancesRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rememberd_instances_removed_total",
			Help: "Instance records removed by the reconciler",
		}),
		ClassMigrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rememberd_class_migrations_total",
			Help: "Instance records moved between classes",
		}),

		StoreSaves: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rememberd_store_saves_total",
			Help: "Persisted store writes",
		}),
		StoreSaveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rememberd_store_save_errors_total",
			Help: "Persisted store writes that failed after retries",
		}),

		TrackedWindows: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rememberd_tracked_windows",
			Help: "Live windows currently tracked",
		}),

		Uptime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rememberd_uptime_seconds",
			Help: "Daemon uptime in seconds",
		}),
	}
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
