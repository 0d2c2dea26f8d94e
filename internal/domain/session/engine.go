// Package session is the daemon's core loop. The engine consumes window
// events, binds live windows to saved instance records, captures placement
// continuously, and drives restoration through the matcher, restorer and
// launch orchestrator.
//
// All window events are handled on one goroutine in emission order. Status
// API calls arrive on other goroutines and touch only mutex-guarded or
// internally synchronized state.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/domain/desktop"
	"github.com/thechief/rememberd/internal/domain/launch"
	"github.com/thechief/rememberd/internal/domain/match"
	"github.com/thechief/rememberd/internal/domain/plugin"
	"github.com/thechief/rememberd/internal/domain/prefs"
	"github.com/thechief/rememberd/internal/domain/progress"
	"github.com/thechief/rememberd/internal/domain/reconcile"
	"github.com/thechief/rememberd/internal/domain/restore"
	"github.com/thechief/rememberd/internal/domain/store"
	"github.com/thechief/rememberd/internal/domain/wm"
	"github.com/thechief/rememberd/internal/infrastructure/config"
	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/infrastructure/monitoring"
	"github.com/thechief/rememberd/internal/shared/geometry"
	"github.com/thechief/rememberd/internal/shared/id"
	"github.com/thechief/rememberd/internal/shared/types"
)

// Deps wires an Engine. Optional fields (Spawner, Clock, Scheduler,
// Desktop, Metrics) may be nil.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Prefs    *prefs.Store
	Plugins  *plugin.Registry
	Filter   wm.Filter
	Source   wm.Source
	Monitors wm.Monitors
	Tracker  *progress.Tracker
	Desktop  *desktop.Index

	Spawner         launch.Spawner
	Clock           launch.Clock
	Scheduler       restore.Scheduler
	LaunchScheduler launch.Scheduler

	Log     *logging.Logger
	Metrics *monitoring.Metrics
}

type binding struct {
	handle     wm.Handle
	class      string
	instanceID string
}

// Engine owns the live-window table and coordinates all domain components.
type Engine struct {
	cfg      *config.Config
	store    *store.Store
	prefs    *prefs.Store
	plugins  *plugin.Registry
	filter   wm.Filter
	source   wm.Source
	monitors wm.Monitors
	tracker  *progress.Tracker
	desktop  *desktop.Index

	matcher  *match.Matcher
	restorer *restore.Restorer
	orch     *launch.Orchestrator
	rec      *reconcile.Reconciler

	mu           sync.Mutex
	bindings     map[uint64]*binding // keyed by window sequence
	restoring    bool
	restoredOnce bool
	startedAt    time.Time

	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewEngine builds the engine and its domain components.
func NewEngine(d Deps) *Engine {
	e := &Engine{
		cfg:      d.Config,
		store:    d.Store,
		prefs:    d.Prefs,
		plugins:  d.Plugins,
		filter:   d.Filter,
		source:   d.Source,
		monitors: d.Monitors,
		tracker:  d.Tracker,
		desktop:  d.Desktop,
		bindings: make(map[uint64]*binding),
		log:      d.Log.Named("session"),
		metrics:  d.Metrics,
	}

	e.matcher = match.New(patternSource{d.Plugins}, d.Log, d.Metrics)

	sched := d.Scheduler
	if sched == nil {
		sched = restore.TimerScheduler{}
	}
	e.restorer = restore.New(
		d.Plugins, d.Monitors, d.Store, d.Prefs, e, sched,
		e.NotifyPositionComplete, d.Config.Restore.AttemptDelay,
		d.Log, d.Metrics,
	)

	launchDeps := launch.Deps{
		Config:    d.Config.Launch,
		Plugins:   d.Plugins,
		Blacklist: d.Filter,
		Live:      e,
		Spawner:   d.Spawner,
		Clock:     d.Clock,
		Scheduler: d.LaunchScheduler,
		Progress:  d.Tracker,
		Log:       d.Log,
		Metrics:   d.Metrics,
	}
	if d.Desktop != nil {
		launchDeps.Desktop = d.Desktop
	}
	e.orch = launch.New(launchDeps)

	e.rec = reconcile.New(
		d.Store, d.Filter, e, e.orch, d.Plugins,
		d.Config.Launch.MaxInstancesPerApp, d.Log, d.Metrics,
	)

	return e
}

// patternSource adapts the plugin registry to the matcher.
type patternSource struct {
	reg *plugin.Registry
}

func (p patternSource) TitlePattern(class string) string {
	if e, ok := p.reg.ForClass(class); ok {
		return e.Plugin.TitlePattern
	}
	return ""
}

// Run drives the event loop until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.syncMonitors()
	e.adoptExisting()

	if e.prefs.Current().AutoRestore {
		e.StartRestore()
	}

	ticker := time.NewTicker(e.cfg.Restore.CleanupInterval)
	defer ticker.Stop()

	events := e.source.Events()
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case ev, ok := <-events:
			if !ok {
				e.shutdown()
				return fmt.Errorf("window event stream closed")
			}
			e.handleEvent(ev)
		case <-ticker.C:
			e.periodic()
		}
	}
}

// syncMonitors records the current monitor layout in the persisted table.
func (e *Engine) syncMonitors() {
	for _, mon := range e.monitors.All() {
		e.store.SetMonitor(mon)
	}
}

// adoptExisting binds windows that were already open when the daemon
// started, without repositioning them.
func (e *Engine) adoptExisting() {
	for _, h := range e.source.Windows() {
		win := h.Info()
		if !e.filter.ShouldTrack(win) {
			continue
		}
		inst, _ := e.ResolveWindow(win)
		e.bind(win, h, inst)
		e.capture(h, inst)
	}
	e.store.Touch()
	e.log.Info("adopted existing windows", zap.Int("count", e.LiveCountTotal()))
}

func (e *Engine) handleEvent(ev wm.Event) {
	switch ev.Kind {
	case wm.EventCreated:
		e.handleCreated(ev.Window)
	case wm.EventChanged:
		e.handleChanged(ev.Window)
	case wm.EventDestroyed:
		e.handleDestroyed(ev.Window)
	case wm.EventClassChanged:
		e.handleClassChanged(ev.Window, ev.OldClass)
	}
}

func (e *Engine) handleCreated(h wm.Handle) {
	win := h.Info()
	if !e.filter.ShouldTrack(win) {
		return
	}

	// Orchestrated launches resolve against their expected set first.
	if inst, lid, ok := e.orch.CheckPendingLaunch(win); ok {
		e.bind(win, h, inst)
		e.restorer.Restore(h, restore.Options{
			FreshlyCreated: true,
			Instance:       inst,
			LaunchID:       lid,
		})
		return
	}

	inst, created := e.ResolveWindow(win)
	e.bind(win, h, inst)
	if created {
		// Brand-new record: nothing to restore, just capture.
		e.capture(h, inst)
		e.store.Touch()
		return
	}
	e.restorer.Restore(h, restore.Options{FreshlyCreated: true, Instance: inst})
}

func (e *Engine) handleChanged(h wm.Handle) {
	win := h.Info()

	e.mu.Lock()
	b, ok := e.bindings[win.Sequence]
	e.mu.Unlock()
	if !ok {
		return
	}

	if inst := e.instanceFor(b); inst != nil {
		e.capture(h, inst)
		e.store.Touch()
	}
}

func (e *Engine) handleDestroyed(h wm.Handle) {
	win := h.Info()

	e.mu.Lock()
	b, ok := e.bindings[win.Sequence]
	if ok {
		delete(e.bindings, win.Sequence)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	if inst := e.instanceFor(b); inst != nil {
		inst.Assigned = false
	}
	e.updateTrackedGauge()
}

// handleClassChanged migrates the saved record when the rename is
// recognized; otherwise the window is re-resolved under its new class.
func (e *Engine) handleClassChanged(h wm.Handle, oldClass string) {
	win := h.Info()

	if inst, ok := e.rec.MigrateClass(win, oldClass); ok {
		e.bind(win, h, inst)
		return
	}

	e.mu.Lock()
	b, ok := e.bindings[win.Sequence]
	e.mu.Unlock()
	if ok {
		if inst := e.instanceFor(b); inst != nil {
			inst.Assigned = false
		}
	}
	if !e.filter.ShouldTrack(win) {
		e.mu.Lock()
		delete(e.bindings, win.Sequence)
		e.mu.Unlock()
		return
	}
	inst, _ := e.ResolveWindow(win)
	e.bind(win, h, inst)
	e.capture(h, inst)
	e.store.Touch()
}

// periodic is the cleanup cadence: capture everything live, advance the
// launch state machine, reconcile saved state, clear stale bindings.
// Reconciliation waits until a restore pass has finished; before that,
// saved apps without windows are unrestored state, not closed apps.
func (e *Engine) periodic() {
	e.captureAll()
	e.orch.Tick()
	e.mu.Lock()
	settled := e.restoredOnce && !e.restoring
	e.mu.Unlock()
	if settled {
		e.rec.Run()
	}
	e.rec.CleanupOrphaned(e.boundInstanceIDs())
	e.maybeFinishRestore()
	e.updateTrackedGauge()
	if e.metrics != nil {
		e.metrics.UpdateUptime()
	}
}

func (e *Engine) captureAll() {
	e.mu.Lock()
	bound := make([]*binding, 0, len(e.bindings))
	for _, b := range e.bindings {
		bound = append(bound, b)
	}
	e.mu.Unlock()

	changed := false
	for _, b := range bound {
		if inst := e.instanceFor(b); inst != nil {
			e.capture(b.handle, inst)
			changed = true
		}
	}
	if changed {
		e.store.Touch()
	}
}

// ResolveWindow finds or creates the instance record for a window. It
// satisfies the restorer's Resolver.
func (e *Engine) ResolveWindow(win types.WindowInfo) (*types.InstanceRecord, bool) {
	app := e.store.GetApp(win.Class)
	if app == nil {
		app = &types.AppRecord{Class: win.Class}
		if e.desktop != nil {
			if entry, ok := e.desktop.ForClass(win.Class); ok {
				app.DesktopEntry = entry.ID
			}
		}
		e.store.SetApp(app)
	}
	inst, created := e.matcher.Resolve(win, app)
	return inst, created
}

func (e *Engine) bind(win types.WindowInfo, h wm.Handle, inst *types.InstanceRecord) {
	e.mu.Lock()
	e.bindings[win.Sequence] = &binding{handle: h, class: win.Class, instanceID: inst.ID}
	e.mu.Unlock()
	e.updateTrackedGauge()
}

func (e *Engine) instanceFor(b *binding) *types.InstanceRecord {
	app := e.store.GetApp(b.class)
	if app == nil {
		return nil
	}
	for _, inst := range app.Instances {
		if inst.ID == b.instanceID {
			return inst
		}
	}
	return nil
}

// capture refreshes a record from its live window. Geometry is captured
// only for plainly placed windows; a maximized, fullscreen or minimized
// frame would destroy the remembered unmaximized rect.
func (e *Engine) capture(h wm.Handle, inst *types.InstanceRecord) {
	win := h.Info()

	inst.Sequence = win.Sequence
	if win.StableID != "" {
		inst.WindowID = win.StableID
	}
	if win.Title != "" {
		inst.Title = win.Title
	}
	inst.Workspace = win.Workspace
	inst.Flags = win.Flags

	if win.Flags.Maximized || win.Flags.Fullscreen || win.Flags.Minimized {
		return
	}

	mon := e.monitorFor(win)
	inst.MonitorID = mon.ID
	inst.MonitorIndex = mon.Index
	frame := win.Frame
	inst.AbsoluteGeom = &frame
	if !mon.Frame.IsZero() {
		pct := geometry.ToPercent(frame, mon.Frame)
		inst.PercentGeom = &pct
	}
}

func (e *Engine) monitorFor(win types.WindowInfo) types.MonitorInfo {
	if win.MonitorID != "" {
		if mon, ok := e.monitors.ByID(win.MonitorID); ok {
			return mon
		}
	}
	// Fall back to the monitor containing the window center.
	cx := win.Frame.X + win.Frame.Width/2
	cy := win.Frame.Y + win.Frame.Height/2
	for _, mon := range e.monitors.All() {
		f := mon.Frame
		if cx >= f.X && cx < f.X+f.Width && cy >= f.Y && cy < f.Y+f.Height {
			return mon
		}
	}
	return e.monitors.Primary()
}

// LiveCount reports live windows of a class. Satisfies the orchestrator's
// and reconciler's counters.
func (e *Engine) LiveCount(class string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, b := range e.bindings {
		if strings.EqualFold(b.class, class) {
			n++
		}
	}
	return n
}

// LiveCountTotal reports the total number of tracked windows.
func (e *Engine) LiveCountTotal() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.bindings)
}

func (e *Engine) boundInstanceIDs() map[string]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]struct{}, len(e.bindings))
	for _, b := range e.bindings {
		out[b.instanceID] = struct{}{}
	}
	return out
}

// StartRestore begins a full session restore: saves are latched off and
// every eligible app is queued for launch.
func (e *Engine) StartRestore() {
	e.mu.Lock()
	if e.restoring {
		e.mu.Unlock()
		return
	}
	e.restoring = true
	e.mu.Unlock()

	e.tracker.Reset()
	e.store.SetRestoreInProgress(true)
	queued := e.orch.LaunchSession(e.store.AllApps())
	e.log.Info("session restore started", zap.Int("queued", queued))
	if queued == 0 {
		e.finishRestore()
	}
}

// LaunchInstances queues the saved instances of one class for launch.
func (e *Engine) LaunchInstances(class string) (int, error) {
	app := e.store.GetApp(class)
	if app == nil {
		return 0, fmt.Errorf("no saved state for class %q", class)
	}
	return e.orch.LaunchApp(app), nil
}

// CheckPendingLaunch exposes the orchestrator's pending-launch match.
func (e *Engine) CheckPendingLaunch(win types.WindowInfo) (*types.InstanceRecord, id.LaunchID, bool) {
	return e.orch.CheckPendingLaunch(win)
}

// GetExpectedInstances exposes the instance ids a class still owes windows
// for.
func (e *Engine) GetExpectedInstances(class string) []string {
	return e.orch.GetExpectedInstances(class)
}

// NotifyPositionComplete is called after the last placement attempt of a
// restore, and may also be invoked through the status API by a cooperating
// shell.
func (e *Engine) NotifyPositionComplete(lid id.LaunchID, class, instanceID string) {
	if lid != "" {
		e.tracker.Set(class, instanceID, lid, progress.StateReady, "")
	}
	e.maybeFinishRestore()
}

// FinalizeRestore force-ends the restore session, discarding outstanding
// launches.
func (e *Engine) FinalizeRestore() int {
	discarded := e.orch.FinalizeRestore()
	e.finishRestore()
	return discarded
}

func (e *Engine) maybeFinishRestore() {
	e.mu.Lock()
	restoring := e.restoring
	e.mu.Unlock()
	if restoring && e.orch.Completed() {
		e.finishRestore()
	}
}

func (e *Engine) finishRestore() {
	e.mu.Lock()
	was := e.restoring
	e.restoring = false
	e.restoredOnce = true
	e.mu.Unlock()
	e.store.SetRestoreInProgress(false)
	if was {
		e.log.Info("session restore finished")
	}
}

// FriendlyName resolves the human-readable program name for a class:
// plugin display name, then desktop-entry name, then the class itself.
func (e *Engine) FriendlyName(class string) string {
	if p, ok := e.plugins.ForClass(class); ok && p.Plugin.DisplayName != "" {
		return p.Plugin.DisplayName
	}
	if e.desktop != nil {
		if entry, ok := e.desktop.ForClass(class); ok && entry.Name != "" {
			return entry.Name
		}
	}
	return class
}

// CleanupOrphanedInstances clears assignments whose windows silently
// disappeared.
func (e *Engine) CleanupOrphanedInstances() int {
	return e.rec.CleanupOrphaned(e.boundInstanceIDs())
}

// ResetAssignments clears every binding and assignment flag. The next
// matching pass starts from a clean partition.
func (e *Engine) ResetAssignments() {
	e.mu.Lock()
	e.bindings = make(map[uint64]*binding)
	e.mu.Unlock()

	for _, app := range e.store.AllApps() {
		for _, inst := range app.Instances {
			inst.Assigned = false
		}
	}
	e.updateTrackedGauge()
}

// Status is the summary served by the status API.
type Status struct {
	TrackedWindows  int       `json:"tracked_windows"`
	SavedApps       int       `json:"saved_apps"`
	SavedInstances  int       `json:"saved_instances"`
	Restoring       bool      `json:"restoring"`
	LaunchQuiescent bool      `json:"launch_quiescent"`
	StartedAt       time.Time `json:"started_at"`
}

// CurrentStatus snapshots the engine state.
func (e *Engine) CurrentStatus() Status {
	apps := e.store.AllApps()
	instances := 0
	for _, app := range apps {
		instances += len(app.Instances)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		TrackedWindows:  len(e.bindings),
		SavedApps:       len(apps),
		SavedInstances:  instances,
		Restoring:       e.restoring,
		LaunchQuiescent: e.orch.Completed(),
		StartedAt:       e.startedAt,
	}
}

func (e *Engine) updateTrackedGauge() {
	if e.metrics != nil {
		e.metrics.TrackedWindows.Set(float64(e.LiveCountTotal()))
	}
}

// shutdown captures final state, flushes it, then latches saves off so the
// window teardown storm cannot erase what was just written.
func (e *Engine) shutdown() {
	e.captureAll()
	if err := e.store.Flush(); err != nil {
		e.log.Error("final flush failed", zap.Error(err))
	}
	e.store.SetShuttingDown()
	e.restorer.Teardown()
	e.log.Info("engine stopped")
}
