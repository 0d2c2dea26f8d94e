// Package launch spawns remembered applications and tracks each spawn until
// its windows appear, time out, or the process dies.
//
// A spawn is tracked as a pending launch covering one or more instance
// records. The state machine is driven externally: the engine calls Tick on
// its cleanup cadence, and time is injected so tests replay hours in
// microseconds.
package launch

import (
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/domain/plugin"
	"github.com/thechief/rememberd/internal/domain/progress"
	"github.com/thechief/rememberd/internal/infrastructure/config"
	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/infrastructure/monitoring"
	"github.com/thechief/rememberd/internal/shared/id"
	"github.com/thechief/rememberd/internal/shared/types"
)

// Clock abstracts time for the state machine.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Scheduler fires a callback once after a delay.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler is the production Scheduler on time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Blacklist filters classes that must never be launched.
type Blacklist interface {
	IsClassBlacklisted(class string) bool
}

// LiveCounter reports how many live windows a class currently has. The
// launch budget for a class is the configured maximum minus this count.
type LiveCounter interface {
	LiveCount(class string) int
}

// DesktopSource resolves a class to its installed .desktop launch command.
type DesktopSource interface {
	ExecForClass(class string) (string, []string, bool)
}

// Classes that own one process for all their windows even without a plugin
// declaring it. Spawning them once per saved instance would stack error
// dialogs or duplicate windows.
var singleInstanceClasses = map[string]struct{}{
	"firefox":          {},
	"thunderbird":      {},
	"spotify":          {},
	"slack":            {},
	"discord":          {},
	"telegram-desktop": {},
	"steam":            {},
}

type launchState int

const (
	statePending launchState = iota
	stateGrace
)

// pendingLaunch is one outstanding spawn. remaining counts the covered
// instances still waiting for a window.
type pendingLaunch struct {
	id        id.LaunchID
	class     string
	expected  []*types.InstanceRecord
	remaining int
	matched   int

	state      launchState
	spawnedAt  time.Time
	deadline   time.Time
	grace      time.Duration
	graceUntil time.Time

	proc Process
}

type queueItem struct {
	class     string
	instances []*types.InstanceRecord
}

// Deps wires an Orchestrator. Spawner, Clock, Scheduler and LookPath default
// to production implementations when nil.
type Deps struct {
	Config    config.LaunchConfig
	Plugins   *plugin.Registry
	Blacklist Blacklist
	Live      LiveCounter
	Spawner   Spawner
	Clock     Clock
	Scheduler Scheduler
	Progress  *progress.Tracker
	Desktop   DesktopSource
	LookPath  func(name string) (string, error)
	Log       *logging.Logger
	Metrics   *monitoring.Metrics
}

// Orchestrator owns the launch queue and the pending-launch table.
type Orchestrator struct {
	cfg       config.LaunchConfig
	plugins   *plugin.Registry
	blacklist Blacklist
	live      LiveCounter
	spawner   Spawner
	clock     Clock
	sched     Scheduler
	progress  *progress.Tracker
	desktop   DesktopSource
	lookPath  func(name string) (string, error)

	mu          sync.Mutex
	pending     map[id.LaunchID]*pendingLaunch
	order       []id.LaunchID
	queue       []queueItem
	pumpArmed   bool
	cancelPump  func()
	activeClass string

	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates an orchestrator.
func New(d Deps) *Orchestrator {
	if d.Spawner == nil {
		d.Spawner = ExecSpawner{}
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Scheduler == nil {
		d.Scheduler = TimerScheduler{}
	}
	if d.LookPath == nil {
		d.LookPath = exec.LookPath
	}
	return &Orchestrator{
		cfg:       d.Config,
		plugins:   d.Plugins,
		blacklist: d.Blacklist,
		live:      d.Live,
		spawner:   d.Spawner,
		clock:     d.Clock,
		sched:     d.Scheduler,
		progress:  d.Progress,
		desktop:   d.Desktop,
		lookPath:  d.LookPath,
		pending:   make(map[id.LaunchID]*pendingLaunch),
		log:       d.Log.Named("launch"),
		metrics:   d.Metrics,
	}
}

// LaunchApp queues the unassigned instances of one application. Returns the
// number of instances queued.
func (o *Orchestrator) LaunchApp(app *types.AppRecord) int {
	return o.enqueue(o.buildItems(app, false))
}

// LaunchSession queues every application eligible for automatic restore.
func (o *Orchestrator) LaunchSession(apps []*types.AppRecord) int {
	// Stable spawn order: alphabetical by class.
	sorted := make([]*types.AppRecord, len(apps))
	copy(sorted, apps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Class < sorted[j].Class })

	total := 0
	for _, app := range sorted {
		total += o.enqueue(o.buildItems(app, true))
	}
	return total
}

func (o *Orchestrator) buildItems(app *types.AppRecord, session bool) []queueItem {
	class := app.Class
	if o.blacklist != nil && o.blacklist.IsClassBlacklisted(class) {
		o.setProgress(class, app.Unassigned(), "", progress.StateSkipped, "blacklisted")
		return nil
	}
	entry, hasPlugin := o.plugins.ForClass(class)
	if session && hasPlugin && !entry.Plugin.Features.AutoRestore {
		o.setProgress(class, app.Unassigned(), "", progress.StateSkipped, "auto-restore disabled")
		return nil
	}

	candidates := app.Unassigned()
	if dedup, ok := o.plugins.Deduplicator(class); ok {
		candidates = dedup.DeduplicateInstances(candidates)
	}

	budget := o.cfg.MaxInstancesPerApp
	if o.live != nil {
		budget -= o.live.LiveCount(class)
	}
	if budget <= 0 || len(candidates) == 0 {
		return nil
	}
	if len(candidates) > budget {
		candidates = candidates[:budget]
	}

	if o.isSingleInstance(class) {
		// One spawn covers every saved instance; the process opens its own
		// windows for all of them.
		return []queueItem{{class: class, instances: candidates}}
	}
	items := make([]queueItem, 0, len(candidates))
	for _, inst := range candidates {
		items = append(items, queueItem{class: class, instances: []*types.InstanceRecord{inst}})
	}
	return items
}

func (o *Orchestrator) enqueue(items []queueItem) int {
	if len(items) == 0 {
		return 0
	}
	queued := 0
	o.mu.Lock()
	for _, item := range items {
		o.queue = append(o.queue, item)
		queued += len(item.instances)
	}
	armed := o.pumpArmed
	o.pumpArmed = true
	o.mu.Unlock()

	for _, item := range items {
		o.setProgress(item.class, item.instances, "", progress.StateScheduled, "")
	}
	if !armed {
		o.armPump(o.cfg.InterAppDelay)
	}
	return queued
}

func (o *Orchestrator) armPump(d time.Duration) {
	// The scheduler may fire synchronously in tests; never call it with the
	// lock held.
	cancel := o.sched.After(d, o.pump)
	o.mu.Lock()
	o.cancelPump = cancel
	o.mu.Unlock()
}

// pump dequeues and spawns one item, then re-arms itself. Consecutive spawns
// of one class are spaced wider so single-process apps settle between
// windows.
func (o *Orchestrator) pump() {
	o.mu.Lock()
	if len(o.queue) == 0 {
		o.pumpArmed = false
		o.cancelPump = nil
		o.mu.Unlock()
		return
	}
	item := o.queue[0]
	o.queue = o.queue[1:]
	o.mu.Unlock()

	o.spawn(item)

	o.mu.Lock()
	if len(o.queue) == 0 {
		o.pumpArmed = false
		o.cancelPump = nil
		o.mu.Unlock()
		return
	}
	delay := o.cfg.InterAppDelay
	if strings.EqualFold(o.queue[0].class, item.class) {
		delay = o.cfg.SameClassDelay
	}
	o.mu.Unlock()
	o.armPump(delay)
}

func (o *Orchestrator) spawn(item queueItem) {
	class := item.class
	lead := item.instances[0]

	exe, args, dir := o.resolveCommand(class, lead)
	ctx := &plugin.LaunchContext{
		Class:      class,
		Instance:   lead,
		Executable: exe,
		Args:       args,
		WorkingDir: dir,
	}
	if pre, ok := o.plugins.PreLauncher(class); ok {
		if err := pre.BeforeLaunch(ctx); err != nil {
			o.log.Warn("pre-launch hook failed",
				zap.String("class", class), zap.Error(err))
		}
	}

	proc, err := o.spawner.Spawn(ctx.Executable, ctx.Args, ctx.WorkingDir)
	if err != nil {
		o.log.Error("spawn failed",
			zap.String("class", class),
			zap.String("executable", ctx.Executable),
			zap.Error(err))
		o.setProgress(class, item.instances, "", progress.StateError, err.Error())
		return
	}
	if post, ok := o.plugins.PostLauncher(class); ok {
		if err := post.AfterLaunch(ctx); err != nil {
			o.log.Warn("post-launch hook failed",
				zap.String("class", class), zap.Error(err))
		}
	}

	now := o.clock.Now()
	p := &pendingLaunch{
		id:        id.NewLaunchID(),
		class:     class,
		expected:  item.instances,
		remaining: len(item.instances),
		spawnedAt: now,
		deadline:  now.Add(o.timeoutFor(class)),
		grace:     o.graceFor(class, len(item.instances) > 1),
		proc:      proc,
	}

	o.mu.Lock()
	o.pending[p.id] = p
	o.order = append(o.order, p.id)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.LaunchesSpawned.Inc()
	}
	o.updateGauge()
	o.setProgress(class, item.instances, p.id, progress.StateLaunching, "")
	o.log.Info("spawned",
		zap.String("class", class),
		zap.String("launch", p.id.String()),
		zap.Int("instances", len(item.instances)),
		zap.Int("pid", proc.PID()))
}

// resolveCommand picks the executable and arguments: plugin declaration
// first, then the captured command line, then the lowercased class as a
// guess of last resort.
func (o *Orchestrator) resolveCommand(class string, inst *types.InstanceRecord) (string, []string, string) {
	if entry, ok := o.plugins.ForClass(class); ok && len(entry.Plugin.Executables) > 0 {
		p := entry.Plugin
		for _, cand := range p.Executables {
			path, err := o.lookPath(cand)
			if err != nil {
				continue
			}
			args := append([]string{}, p.Flags...)

			// Conditional flags in stable key order.
			keys := make([]string, 0, len(p.ConditionalFlags))
			for k := range p.ConditionalFlags {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if p.Settings[k] {
					args = append(args, p.ConditionalFlags[k]...)
				}
			}

			if parser, ok := o.plugins.TitleParser(class); ok {
				args = append(args, parser.ParseTitleData(inst)...)
			}
			return path, args, inst.WorkingDir
		}
	}
	if len(inst.CommandLine) > 0 {
		return inst.CommandLine[0], inst.CommandLine[1:], inst.WorkingDir
	}
	if o.desktop != nil {
		if exe, args, ok := o.desktop.ExecForClass(class); ok {
			return exe, args, inst.WorkingDir
		}
	}
	return strings.ToLower(class), nil, inst.WorkingDir
}

func (o *Orchestrator) timeoutFor(class string) time.Duration {
	if entry, ok := o.plugins.ForClass(class); ok && entry.Plugin.Features.LaunchTimeout > 0 {
		return entry.Plugin.Features.LaunchTimeout
	}
	return o.cfg.Timeout
}

func (o *Orchestrator) graceFor(class string, multiWindow bool) time.Duration {
	grace := o.cfg.GracePeriod
	if entry, ok := o.plugins.ForClass(class); ok && entry.Plugin.Features.GracePeriod > 0 {
		grace = entry.Plugin.Features.GracePeriod
	}
	// A single spawn expected to open several windows needs longer.
	if (multiWindow || o.isSingleInstance(class)) && o.cfg.SingleInstanceGrace > grace {
		grace = o.cfg.SingleInstanceGrace
	}
	return grace
}

func (o *Orchestrator) isSingleInstance(class string) bool {
	if entry, ok := o.plugins.ForClass(class); ok && entry.Plugin.Features.SingleInstance {
		return true
	}
	_, ok := singleInstanceClasses[strings.ToLower(class)]
	return ok
}

// Tick advances the state machine: crash detection, timeout transitions and
// grace expiry. Driven by the engine's cleanup cadence.
func (o *Orchestrator) Tick() {
	now := o.clock.Now()

	type transition struct {
		class  string
		insts  []*types.InstanceRecord
		lid    id.LaunchID
		state  progress.State
		detail string
	}
	var notes []transition

	o.mu.Lock()
	// remove mutates order; iterate a snapshot.
	snapshot := append([]id.LaunchID(nil), o.order...)
	for _, lid := range snapshot {
		p, ok := o.pending[lid]
		if !ok {
			continue
		}

		if p.proc != nil {
			select {
			case <-p.proc.Done():
				code := p.proc.ExitCode()
				exitedWithin := now.Sub(p.spawnedAt) <= o.cfg.CrashWindow
				p.proc = nil
				if code != 0 && exitedWithin {
					// Died right after spawn; no window is coming.
					o.remove(lid)
					if o.metrics != nil {
						o.metrics.LaunchesCrashed.Inc()
					}
					notes = append(notes, transition{p.class, unmatched(p.expected), lid, progress.StateError, "process exited immediately"})
					continue
				}
				// A zero exit is a hand-off to an existing process; a late
				// nonzero exit may still have left windows behind. Either
				// way the timeout keeps running.
			default:
			}
		}

		switch p.state {
		case statePending:
			if !now.Before(p.deadline) {
				p.state = stateGrace
				p.graceUntil = now.Add(p.grace)
				if o.metrics != nil {
					o.metrics.LaunchesTimedOut.Inc()
				}
				notes = append(notes, transition{p.class, unmatched(p.expected), lid, progress.StateTimeout, "no window before deadline"})
			}
		case stateGrace:
			if !now.Before(p.graceUntil) {
				o.remove(lid)
				o.log.Info("launch expired",
					zap.String("class", p.class), zap.String("launch", lid.String()))
			}
		}
	}
	o.mu.Unlock()

	o.updateGauge()
	for _, n := range notes {
		o.setProgress(n.class, n.insts, n.lid, n.state, n.detail)
	}
}

// unmatched returns the covered instances still waiting for a window.
func unmatched(insts []*types.InstanceRecord) []*types.InstanceRecord {
	out := make([]*types.InstanceRecord, 0, len(insts))
	for _, inst := range insts {
		if !inst.Assigned {
			out = append(out, inst)
		}
	}
	return out
}

// CheckPendingLaunch matches a newly created window against the pending
// table. A window of a pending class resolves the oldest such launch; a
// window whose class shares identity with a pending class (a launcher
// handing off to its main window) resolves indirectly. The bound instance
// record is returned for restoration.
func (o *Orchestrator) CheckPendingLaunch(win types.WindowInfo) (*types.InstanceRecord, id.LaunchID, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := o.findPending(win.Class)
	if p == nil {
		return nil, "", false
	}

	inst := pickExpected(p, win)
	if inst == nil {
		return nil, "", false
	}
	bind(inst, win)
	p.remaining--
	p.matched++

	if o.progress != nil {
		o.progress.Set(p.class, inst.ID, p.id, progress.StatePositioning, "")
	}
	if p.matched == 1 {
		phase := "pending"
		if p.state == stateGrace {
			phase = "grace"
		}
		if o.metrics != nil {
			o.metrics.LaunchesResolved.WithLabelValues(phase).Inc()
		}
		o.log.Info("launch matched",
			zap.String("class", p.class),
			zap.String("window_class", win.Class),
			zap.String("launch", p.id.String()),
			zap.String("phase", phase))
	}
	if p.remaining <= 0 {
		o.remove(p.id)
	}
	o.updateGaugeLocked()
	return inst, p.id, true
}

// findPending returns the oldest matching launch: direct class match first,
// shared-identity match second.
func (o *Orchestrator) findPending(class string) *pendingLaunch {
	for _, lid := range o.order {
		if p, ok := o.pending[lid]; ok && strings.EqualFold(p.class, class) {
			return p
		}
	}
	for _, lid := range o.order {
		if p, ok := o.pending[lid]; ok && o.plugins.SharedIdentity(p.class, class) {
			return p
		}
	}
	return nil
}

// pickExpected chooses among the covered instances: exact title first, then
// list order.
func pickExpected(p *pendingLaunch, win types.WindowInfo) *types.InstanceRecord {
	var first *types.InstanceRecord
	for _, inst := range p.expected {
		if inst.Assigned {
			continue
		}
		if inst.Title != "" && inst.Title == win.Title {
			return inst
		}
		if first == nil {
			first = inst
		}
	}
	return first
}

func bind(inst *types.InstanceRecord, win types.WindowInfo) {
	inst.Assigned = true
	inst.Sequence = win.Sequence
	if win.StableID != "" {
		inst.WindowID = win.StableID
	}
	if win.Title != "" {
		inst.Title = win.Title
	}
}

// GetExpectedInstances returns the instance ids a class is still expected
// to produce windows for.
func (o *Orchestrator) GetExpectedInstances(class string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	var ids []string
	for _, lid := range o.order {
		p, ok := o.pending[lid]
		if !ok || !strings.EqualFold(p.class, class) {
			continue
		}
		for _, inst := range p.expected {
			if !inst.Assigned {
				ids = append(ids, inst.ID)
			}
		}
	}
	return ids
}

// FinalizeRestore purges the queue and every outstanding launch, pending or
// in grace. Returns how many launches were discarded.
func (o *Orchestrator) FinalizeRestore() int {
	o.mu.Lock()
	discarded := len(o.pending)
	o.pending = make(map[id.LaunchID]*pendingLaunch)
	o.order = nil
	o.queue = nil
	o.pumpArmed = false
	cancel := o.cancelPump
	o.cancelPump = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.updateGauge()
	return discarded
}

// Completed reports whether orchestration is quiescent: nothing queued,
// nothing pending, nothing in grace.
func (o *Orchestrator) Completed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending) == 0 && len(o.queue) == 0 && !o.pumpArmed
}

// remove must be called with the lock held.
func (o *Orchestrator) remove(lid id.LaunchID) {
	delete(o.pending, lid)
	for i, v := range o.order {
		if v == lid {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

func (o *Orchestrator) updateGauge() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updateGaugeLocked()
}

func (o *Orchestrator) updateGaugeLocked() {
	if o.metrics != nil {
		o.metrics.LaunchesPending.Set(float64(len(o.pending)))
	}
}

// setProgress records one transition per covered instance so siblings of a
// class report independently. With no instances it falls back to one
// class-keyed note.
func (o *Orchestrator) setProgress(class string, insts []*types.InstanceRecord, lid id.LaunchID, state progress.State, detail string) {
	if o.progress == nil {
		return
	}
	if len(insts) == 0 {
		o.progress.Set(class, "", lid, state, detail)
		return
	}
	for _, inst := range insts {
		o.progress.Set(class, inst.ID, lid, state, detail)
	}
}
