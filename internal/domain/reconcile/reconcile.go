// Package reconcile keeps the saved state in step with the running session:
// it sweeps records that can never be restored, forgets apps the user has
// closed, and trims saved instances back toward what is actually running.
//
// Trimming is deliberately conservative where evidence exists. Records
// bound to a live window or to a launch still outstanding are never
// removed, so a pass can leave the saved count above the live count.
package reconcile

import (
	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/domain/plugin"
	"github.com/thechief/rememberd/internal/domain/store"
	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/infrastructure/monitoring"
	"github.com/thechief/rememberd/internal/shared/types"
)

// Blacklist filters classes that must not be persisted.
type Blacklist interface {
	IsClassBlacklisted(class string) bool
}

// Live reports current window counts per class.
type Live interface {
	LiveCount(class string) int
}

// Expected reports instance ids still awaited by the launch orchestrator.
type Expected interface {
	GetExpectedInstances(class string) []string
}

// Stats summarizes one reconciliation pass.
type Stats struct {
	InstancesRemoved int
	AppsRemoved      int
	BindingsCleared  int
}

// Reconciler runs the periodic cleanup pass.
type Reconciler struct {
	store     *store.Store
	blacklist Blacklist
	live      Live
	expected  Expected
	plugins   *plugin.Registry
	maxPerApp int

	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a reconciler.
func New(
	st *store.Store,
	blacklist Blacklist,
	live Live,
	expected Expected,
	plugins *plugin.Registry,
	maxPerApp int,
	log *logging.Logger,
	metrics *monitoring.Metrics,
) *Reconciler {
	return &Reconciler{
		store:     st,
		blacklist: blacklist,
		live:      live,
		expected:  expected,
		plugins:   plugins,
		maxPerApp: maxPerApp,
		log:       log.Named("reconcile"),
		metrics:   metrics,
	}
}

// Run executes one cleanup pass over every app record.
func (r *Reconciler) Run() Stats {
	var stats Stats
	changed := false

	for _, app := range r.store.AllApps() {
		// Blacklisted classes are dropped wholesale; they were saved before
		// the blacklist caught them.
		if r.blacklist != nil && r.blacklist.IsClassBlacklisted(app.Class) {
			stats.InstancesRemoved += len(app.Instances)
			stats.AppsRemoved++
			r.store.RemoveApp(app.Class)
			r.log.Info("removed blacklisted app", zap.String("class", app.Class))
			continue
		}

		removed := dedupeByWindowID(app) + dropGeometryless(app)
		stats.InstancesRemoved += removed
		if removed > 0 {
			changed = true
		}

		expected := r.expectedSet(app.Class)
		live := 0
		if r.live != nil {
			live = r.live.LiveCount(app.Class)
		}

		if live == 0 {
			// Still being launched: the records look orphaned only until
			// their windows arrive.
			if len(expected) > 0 {
				continue
			}
			// Classes a plugin excludes from session restore are never
			// queued, so expected entries cannot vouch for them; keep them.
			if r.plugins != nil {
				if e, ok := r.plugins.ForClass(app.Class); ok && !e.Plugin.Features.AutoRestore {
					continue
				}
			}
			// No window and no launch outstanding: the user closed the app
			// this session, so it is not part of the session anymore.
			stats.InstancesRemoved += len(app.Instances)
			stats.AppsRemoved++
			r.store.RemoveApp(app.Class)
			changed = true
			r.log.Info("forgot closed app", zap.String("class", app.Class))
			continue
		}

		trimmed := r.trimExcess(app, live, expected)
		stats.InstancesRemoved += trimmed
		if trimmed > 0 {
			changed = true
		}

		if len(app.Instances) == 0 {
			stats.AppsRemoved++
			r.store.RemoveApp(app.Class)
			continue
		}
	}

	if changed {
		r.store.Touch()
	}
	if r.metrics != nil && stats.InstancesRemoved > 0 {
		r.metrics.InstancesRemoved.Add(float64(stats.InstancesRemoved))
	}
	if stats.InstancesRemoved > 0 || stats.AppsRemoved > 0 {
		r.log.Info("reconciled",
			zap.Int("instances_removed", stats.InstancesRemoved),
			zap.Int("apps_removed", stats.AppsRemoved))
	}
	return stats
}

// CleanupOrphaned clears stale bindings: any assigned record whose id is
// not in the live-bound set lost its window without a destroy notification.
func (r *Reconciler) CleanupOrphaned(boundIDs map[string]struct{}) int {
	cleared := 0
	for _, app := range r.store.AllApps() {
		for _, inst := range app.Instances {
			if !inst.Assigned {
				continue
			}
			if _, ok := boundIDs[inst.ID]; !ok {
				inst.Assigned = false
				cleared++
			}
		}
	}
	if cleared > 0 {
		r.log.Debug("cleared orphaned bindings", zap.Int("count", cleared))
	}
	return cleared
}

func (r *Reconciler) expectedSet(class string) map[string]struct{} {
	if r.expected == nil {
		return nil
	}
	ids := r.expected.GetExpectedInstances(class)
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// dedupeByWindowID removes records sharing another record's cross-restart
// window id, keeping the first. Duplicates appear when a window was captured
// twice across a daemon restart.
func dedupeByWindowID(app *types.AppRecord) int {
	seen := make(map[string]struct{}, len(app.Instances))
	kept := app.Instances[:0]
	removed := 0
	for _, inst := range app.Instances {
		if inst.WindowID != "" {
			if _, dup := seen[inst.WindowID]; dup {
				removed++
				continue
			}
			seen[inst.WindowID] = struct{}{}
		}
		kept = append(kept, inst)
	}
	app.Instances = kept
	return removed
}

// dropGeometryless removes records that carry no placement at all; they can
// never be restored.
func dropGeometryless(app *types.AppRecord) int {
	kept := app.Instances[:0]
	removed := 0
	for _, inst := range app.Instances {
		if inst.HasGeometry() {
			kept = append(kept, inst)
		} else {
			removed++
		}
	}
	app.Instances = kept
	return removed
}

// trimExcess removes records beyond the live count, and enforces the
// per-app cap. Only the unmatched pool is removable: records bound to a
// live window or still expected by a launch stay, so the result may remain
// above target.
func (r *Reconciler) trimExcess(app *types.AppRecord, live int, expected map[string]struct{}) int {
	target := len(app.Instances)
	if live < target {
		target = live
	}
	if r.maxPerApp > 0 && r.maxPerApp < target {
		target = r.maxPerApp
	}
	if target >= len(app.Instances) {
		return 0
	}

	removed := 0
	for i := len(app.Instances) - 1; i >= 0 && len(app.Instances) > target; i-- {
		inst := app.Instances[i]
		if inst.Assigned {
			continue
		}
		if _, ok := expected[inst.ID]; ok {
			continue
		}
		app.Instances = append(app.Instances[:i], app.Instances[i+1:]...)
		removed++
	}
	return removed
}
