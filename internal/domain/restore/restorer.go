// Package restore applies a persisted instance's placement to a live
// window.
//
// Placement is a strict sequence: workspace before sizing, maximize state
// before geometry, geometry before shade, minimize last. Apps that
// aggressively self-position get multiple attempts on plugin-declared
// timings; everything else gets a single delayed attempt, optionally
// preceded by an anti-flicker minimize.
package restore

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/domain/plugin"
	"github.com/thechief/rememberd/internal/domain/prefs"
	"github.com/thechief/rememberd/internal/domain/wm"
	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/infrastructure/monitoring"
	"github.com/thechief/rememberd/internal/shared/geometry"
	"github.com/thechief/rememberd/internal/shared/id"
	"github.com/thechief/rememberd/internal/shared/types"
)

// Scheduler is the cooperative timer surface. Implementations run fn once
// after d; the returned cancel is idempotent.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler is the production Scheduler on time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Resolver finds the instance record for a window that is not a known
// orchestrated launch.
type Resolver interface {
	ResolveWindow(win types.WindowInfo) (*types.InstanceRecord, bool)
}

// SavedMonitors exposes the persisted monitor table.
type SavedMonitors interface {
	Monitors() map[string]types.MonitorInfo
}

// PrefsSource returns the active preference set.
type PrefsSource interface {
	Current() prefs.Preferences
}

// Completion is signaled once per restore, after the last attempt. It
// unblocks any launch waiter tracking the window. instanceID is empty when
// the window had no saved record.
type Completion func(launchID id.LaunchID, class, instanceID string)

// Options select the restore path for one window.
type Options struct {
	// FreshlyCreated enables the anti-flicker minimize. Never set for
	// windows surviving a shell restart.
	FreshlyCreated bool
	// Instance bypasses the resolver when the window is a known
	// orchestrated launch.
	Instance *types.InstanceRecord
	LaunchID id.LaunchID
}

// Restorer schedules and applies placement attempts.
type Restorer struct {
	plugins   *plugin.Registry
	monitors  wm.Monitors
	saved     SavedMonitors
	prefs     PrefsSource
	resolver  Resolver
	scheduler Scheduler
	complete  Completion

	attemptDelay time.Duration

	cancelMu sync.Mutex
	cancels  []func()

	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a restorer.
func New(
	plugins *plugin.Registry,
	monitors wm.Monitors,
	saved SavedMonitors,
	prefsSrc PrefsSource,
	resolver Resolver,
	scheduler Scheduler,
	complete Completion,
	attemptDelay time.Duration,
	log *logging.Logger,
	metrics *monitoring.Metrics,
) *Restorer {
	return &Restorer{
		plugins:      plugins,
		monitors:     monitors,
		saved:        saved,
		prefs:        prefsSrc,
		resolver:     resolver,
		scheduler:    scheduler,
		complete:     complete,
		attemptDelay: attemptDelay,
		log:          log.Named("restore"),
		metrics:      metrics,
	}
}

// Restore positions one window according to its saved instance.
func (r *Restorer) Restore(h wm.Handle, opts Options) {
	win := h.Info()

	if skipper, ok := r.plugins.RestoreSkipper(win.Class); ok && skipper.ShouldSkipRestore(win) {
		r.signal(opts.LaunchID, win.Class, instanceID(opts.Instance))
		return
	}

	inst := opts.Instance
	if inst == nil && r.resolver != nil {
		inst, _ = r.resolver.ResolveWindow(win)
	}
	if inst == nil || !inst.HasGeometry() {
		// Nothing saved; unblock any waiter immediately.
		r.signal(opts.LaunchID, win.Class, instanceID(inst))
		return
	}

	if timings := r.customTimings(win.Class); len(timings) > 0 {
		for i, delay := range timings {
			last := i == len(timings)-1
			r.schedule(delay, func() {
				r.apply(h, inst)
				if last {
					r.signal(opts.LaunchID, win.Class, inst.ID)
				}
			})
		}
		return
	}

	// Anti-flicker: windows meant to end up visible are parked minimized
	// while they settle, so the user never sees them jump.
	if opts.FreshlyCreated && !inst.Flags.Minimized {
		if err := h.Minimize(); err == nil {
			r.schedule(r.attemptDelay, func() {
				r.apply(h, inst)
				if err := h.Unminimize(); err != nil {
					r.log.Debug("unminimize failed", zap.String("class", win.Class), zap.Error(err))
				}
				r.signal(opts.LaunchID, win.Class, inst.ID)
			})
			return
		}
	}

	r.schedule(r.attemptDelay, func() {
		r.apply(h, inst)
		r.signal(opts.LaunchID, win.Class, inst.ID)
	})
}

// Teardown cancels every outstanding attempt.
func (r *Restorer) Teardown() {
	r.cancelMu.Lock()
	cancels := r.cancels
	r.cancels = nil
	r.cancelMu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (r *Restorer) schedule(d time.Duration, fn func()) {
	cancel := r.scheduler.After(d, fn)
	r.cancelMu.Lock()
	r.cancels = append(r.cancels, cancel)
	r.cancelMu.Unlock()
}

func (r *Restorer) signal(launchID id.LaunchID, class, instID string) {
	if r.complete != nil {
		r.complete(launchID, class, instID)
	}
}

func instanceID(inst *types.InstanceRecord) string {
	if inst == nil {
		return ""
	}
	return inst.ID
}

func (r *Restorer) customTimings(class string) []time.Duration {
	if e, ok := r.plugins.ForClass(class); ok {
		return e.Plugin.RestoreTimings
	}
	return nil
}

// apply runs the placement sequence. Step order is load-bearing; a failure
// aborts the remainder since the window is likely gone. Partial-state
// repair is not attempted.
func (r *Restorer) apply(h wm.Handle, inst *types.InstanceRecord) {
	if r.metrics != nil {
		r.metrics.RestoreAttempts.Inc()
	}
	if err := r.applySequence(h, inst); err != nil {
		if r.metrics != nil {
			r.metrics.RestoreFailures.Inc()
		}
		r.log.Warn("placement aborted",
			zap.String("instance", inst.ID), zap.Error(err))
	}
}

func (r *Restorer) applySequence(h wm.Handle, inst *types.InstanceRecord) error {
	p := r.prefs.Current()
	live := h.Info()

	// (1) Workspace first: geometry is workspace-relative on some WMs.
	if p.RestoreWorkspace && !inst.Flags.Sticky && inst.Workspace != live.Workspace {
		if err := h.MoveToWorkspace(inst.Workspace); err != nil {
			return err
		}
	}

	// (2) Maximized windows skip geometry entirely. Unmaximize first so the
	// WM recomputes the restored frame.
	if inst.Flags.Maximized {
		if err := h.Unmaximize(); err != nil {
			return err
		}
		if err := h.Maximize(); err != nil {
			return err
		}
		return r.applyTail(h, inst, p)
	}

	// (3) Live maximized but saved not: clear it before sizing.
	if live.Flags.Maximized {
		if err := h.Unmaximize(); err != nil {
			return err
		}
	}

	// (4-7) Resolve monitor, derive target frame, clamp.
	mon := r.resolveMonitor(inst)
	target := r.targetFrame(inst, mon.Frame)
	target = geometry.ClampSize(target)
	if p.ClampToScreen {
		target = geometry.ClampToMonitor(target, mon.Frame)
	}

	// (8) Stateful toggles before the move; restoration is authoritative,
	// so unwanted live states are actively cleared.
	if err := r.applyToggles(h, inst, live, p); err != nil {
		return err
	}

	// (9) Move/resize.
	if err := h.MoveResize(target); err != nil {
		return err
	}

	return r.applyTail(h, inst, p)
}

// applyTail is steps (10) and (11): shade after sizing, minimize dead last.
func (r *Restorer) applyTail(h wm.Handle, inst *types.InstanceRecord, p prefs.Preferences) error {
	if p.RememberShaded && inst.Flags.Shaded {
		if err := h.SetShaded(true); err != nil {
			return err
		}
	}
	if p.RestoreMinimized && inst.Flags.Minimized {
		if err := h.Minimize(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Restorer) applyToggles(h wm.Handle, inst *types.InstanceRecord, live types.WindowInfo, p prefs.Preferences) error {
	if p.RememberSticky && inst.Flags.Sticky != live.Flags.Sticky {
		if err := h.SetSticky(inst.Flags.Sticky); err != nil {
			return err
		}
	}
	if p.RememberAlwaysOnTop && inst.Flags.AlwaysOnTop != live.Flags.AlwaysOnTop {
		if err := h.SetAlwaysOnTop(inst.Flags.AlwaysOnTop); err != nil {
			return err
		}
	}
	if p.RememberFullscreen && inst.Flags.Fullscreen != live.Flags.Fullscreen {
		if err := h.SetFullscreen(inst.Flags.Fullscreen); err != nil {
			return err
		}
	}
	return nil
}

func (r *Restorer) targetFrame(inst *types.InstanceRecord, monFrame types.Geometry) types.Geometry {
	if inst.PercentGeom != nil {
		return geometry.FromPercent(*inst.PercentGeom, monFrame)
	}
	if inst.AbsoluteGeom != nil {
		return *inst.AbsoluteGeom
	}
	return monFrame
}

// resolveMonitor walks the fallback chain: exact id, EDID-embedded id,
// connector, layout fingerprint, saved index, primary.
func (r *Restorer) resolveMonitor(inst *types.InstanceRecord) types.MonitorInfo {
	if inst.MonitorID != "" {
		if mon, ok := r.monitors.ByID(inst.MonitorID); ok {
			return mon
		}
		// EDID serials sometimes arrive embedded in a longer id string
		// depending on the compositor; containment either way counts.
		for _, mon := range r.monitors.All() {
			if mon.ID != "" &&
				(strings.Contains(mon.ID, inst.MonitorID) || strings.Contains(inst.MonitorID, mon.ID)) {
				return mon
			}
		}
		if saved, ok := r.saved.Monitors()[inst.MonitorID]; ok {
			if saved.Connector != "" {
				if mon, ok := r.monitors.ByConnector(saved.Connector); ok {
					return mon
				}
			}
			if mon, ok := r.monitors.ByFingerprint(saved.Fingerprint()); ok {
				return mon
			}
		}
	}
	if mon, ok := r.monitors.ByIndex(inst.MonitorIndex); ok {
		return mon
	}
	return r.monitors.Primary()
}
