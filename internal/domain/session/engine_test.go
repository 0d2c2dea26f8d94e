package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thechief/rememberd/internal/domain/launch"
	"github.com/thechief/rememberd/internal/domain/plugin"
	"github.com/thechief/rememberd/internal/domain/prefs"
	"github.com/thechief/rememberd/internal/domain/progress"
	"github.com/thechief/rememberd/internal/domain/store"
	"github.com/thechief/rememberd/internal/domain/wm"
	"github.com/thechief/rememberd/internal/infrastructure/config"
	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/shared/types"
)

type fakeHandle struct {
	info  types.WindowInfo
	calls []string
}

func (h *fakeHandle) record(name string) error {
	h.calls = append(h.calls, name)
	return nil
}

func (h *fakeHandle) Info() types.WindowInfo          { return h.info }
func (h *fakeHandle) MoveResize(types.Geometry) error { return h.record("MoveResize") }
func (h *fakeHandle) MoveToWorkspace(int) error       { return h.record("MoveToWorkspace") }
func (h *fakeHandle) Maximize() error                 { return h.record("Maximize") }
func (h *fakeHandle) Unmaximize() error               { return h.record("Unmaximize") }
func (h *fakeHandle) Minimize() error                 { return h.record("Minimize") }
func (h *fakeHandle) Unminimize() error               { return h.record("Unminimize") }
func (h *fakeHandle) SetSticky(bool) error            { return h.record("SetSticky") }
func (h *fakeHandle) SetAlwaysOnTop(bool) error       { return h.record("SetAlwaysOnTop") }
func (h *fakeHandle) SetFullscreen(bool) error        { return h.record("SetFullscreen") }
func (h *fakeHandle) SetShaded(bool) error            { return h.record("SetShaded") }

type fakeMonitors struct{ mons []types.MonitorInfo }

func (m *fakeMonitors) ByID(id string) (types.MonitorInfo, bool) {
	for _, mon := range m.mons {
		if mon.ID == id {
			return mon, true
		}
	}
	return types.MonitorInfo{}, false
}
func (m *fakeMonitors) ByConnector(string) (types.MonitorInfo, bool)   { return types.MonitorInfo{}, false }
func (m *fakeMonitors) ByFingerprint(string) (types.MonitorInfo, bool) { return types.MonitorInfo{}, false }
func (m *fakeMonitors) ByIndex(i int) (types.MonitorInfo, bool) {
	if i >= 0 && i < len(m.mons) {
		return m.mons[i], true
	}
	return types.MonitorInfo{}, false
}
func (m *fakeMonitors) Primary() types.MonitorInfo { return m.mons[0] }
func (m *fakeMonitors) All() []types.MonitorInfo   { return m.mons }

type fakeSource struct {
	windows []wm.Handle
	events  chan wm.Event
}

func (s *fakeSource) Windows() []wm.Handle    { return s.windows }
func (s *fakeSource) Events() <-chan wm.Event { return s.events }

type immediateScheduler struct{}

func (immediateScheduler) After(_ time.Duration, fn func()) func() {
	fn()
	return func() {}
}

type fakeProc struct{ done chan struct{} }

func (p *fakeProc) PID() int              { return 1234 }
func (p *fakeProc) Done() <-chan struct{} { return p.done }
func (p *fakeProc) ExitCode() int         { return 0 }

type fakeSpawner struct{ spawned []string }

func (s *fakeSpawner) Spawn(exe string, _ []string, _ string) (launch.Process, error) {
	s.spawned = append(s.spawned, exe)
	return &fakeProc{done: make(chan struct{})}, nil
}

type env struct {
	engine  *Engine
	store   *store.Store
	prefs   *prefs.Store
	tracker *progress.Tracker
	spawner *fakeSpawner
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:   store.New(&store.MemoryBackend{}, 10*time.Millisecond, logging.NewNop(), nil),
		prefs:   prefs.NewStore(""),
		tracker: progress.NewTracker(),
		spawner: &fakeSpawner{},
	}
	require.NoError(t, e.store.Load())

	mons := &fakeMonitors{mons: []types.MonitorInfo{{
		ID: "EDID-1", Connector: "DP-1", Index: 0, Primary: true,
		Frame: types.Geometry{Width: 1920, Height: 1080},
	}}}
	e.engine = NewEngine(Deps{
		Config:          config.Default(),
		Store:           e.store,
		Prefs:           e.prefs,
		Plugins:         plugin.NewRegistry(),
		Filter:          wm.NewClassFilter(nil, e.prefs, nil),
		Source:          &fakeSource{events: make(chan wm.Event)},
		Monitors:        mons,
		Tracker:         e.tracker,
		Spawner:         e.spawner,
		Scheduler:       immediateScheduler{},
		LaunchScheduler: immediateScheduler{},
		Log:             logging.NewNop(),
	})
	return e
}

func savedApp(class string, titles ...string) *types.AppRecord {
	app := &types.AppRecord{Class: class}
	for i, title := range titles {
		app.Instances = append(app.Instances, &types.InstanceRecord{
			ID:          "inst_" + title,
			Title:       title,
			CommandLine: []string{"/usr/bin/" + class},
			PercentGeom: &types.PercentGeometry{X: 0.1 * float64(i+1), Y: 0.1, Width: 0.4, Height: 0.4},
		})
	}
	return app
}

func TestCreatedWindowRestoresSavedPlacement(t *testing.T) {
	e := newEnv(t)
	e.store.SetApp(savedApp("Code", "proj - Code"))

	h := &fakeHandle{info: types.WindowInfo{
		Class: "Code", Title: "proj - Code", Sequence: 1,
		Frame: types.Geometry{X: 500, Y: 500, Width: 600, Height: 400},
	}}
	e.engine.handleCreated(h)

	assert.Contains(t, h.calls, "MoveResize")
	assert.Equal(t, 1, e.engine.LiveCount("Code"))
	assert.True(t, e.store.GetApp("Code").Instances[0].Assigned)
}

func TestCreatedWindowWithoutHistoryOnlyCaptures(t *testing.T) {
	e := newEnv(t)

	h := &fakeHandle{info: types.WindowInfo{
		Class: "Foot", Title: "fish", Sequence: 2,
		Frame: types.Geometry{X: 300, Y: 200, Width: 700, Height: 500},
	}}
	e.engine.handleCreated(h)

	assert.NotContains(t, h.calls, "MoveResize", "nothing saved, nothing restored")
	app := e.store.GetApp("Foot")
	require.NotNil(t, app)
	require.Len(t, app.Instances, 1)
	inst := app.Instances[0]
	require.NotNil(t, inst.AbsoluteGeom)
	assert.Equal(t, 700, inst.AbsoluteGeom.Width)
	require.NotNil(t, inst.PercentGeom)
	assert.InDelta(t, 700.0/1920.0, inst.PercentGeom.Width, 0.001)
}

func TestDestroyedClearsAssignment(t *testing.T) {
	e := newEnv(t)
	e.store.SetApp(savedApp("Code", "proj - Code"))

	h := &fakeHandle{info: types.WindowInfo{
		Class: "Code", Title: "proj - Code", Sequence: 3,
		Frame: types.Geometry{X: 500, Y: 500, Width: 600, Height: 400},
	}}
	e.engine.handleCreated(h)
	require.Equal(t, 1, e.engine.LiveCount("Code"))

	e.engine.handleDestroyed(h)

	assert.Zero(t, e.engine.LiveCount("Code"))
	assert.False(t, e.store.GetApp("Code").Instances[0].Assigned,
		"record is free for the next session")
	assert.Len(t, e.store.GetApp("Code").Instances, 1, "record itself survives")
}

func TestChangedRecapturesGeometry(t *testing.T) {
	e := newEnv(t)

	h := &fakeHandle{info: types.WindowInfo{
		Class: "Foot", Sequence: 4,
		Frame: types.Geometry{X: 100, Y: 100, Width: 500, Height: 400},
	}}
	e.engine.handleCreated(h)

	h.info.Frame = types.Geometry{X: 200, Y: 220, Width: 800, Height: 600}
	e.engine.handleChanged(h)

	inst := e.store.GetApp("Foot").Instances[0]
	assert.Equal(t, 800, inst.AbsoluteGeom.Width)
	assert.Equal(t, 200, inst.AbsoluteGeom.X)
}

func TestMaximizedWindowKeepsSavedRect(t *testing.T) {
	e := newEnv(t)

	h := &fakeHandle{info: types.WindowInfo{
		Class: "Foot", Sequence: 5,
		Frame: types.Geometry{X: 150, Y: 150, Width: 640, Height: 480},
	}}
	e.engine.handleCreated(h)

	h.info.Frame = types.Geometry{Width: 1920, Height: 1080}
	h.info.Flags.Maximized = true
	e.engine.handleChanged(h)

	inst := e.store.GetApp("Foot").Instances[0]
	assert.Equal(t, 640, inst.AbsoluteGeom.Width, "maximized frame must not clobber the rect")
	assert.True(t, inst.Flags.Maximized, "but the state flag is captured")
}

func TestLaunchedWindowBindsToExpectedInstance(t *testing.T) {
	e := newEnv(t)
	e.store.SetApp(savedApp("app-x", "doc-1"))

	queued, err := e.engine.LaunchInstances("app-x")
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	require.Equal(t, []string{"/usr/bin/app-x"}, e.spawner.spawned)
	assert.Equal(t, []string{"inst_doc-1"}, e.engine.GetExpectedInstances("app-x"))

	h := &fakeHandle{info: types.WindowInfo{
		Class: "app-x", Title: "doc-1", Sequence: 6,
		Frame: types.Geometry{X: 0, Y: 0, Width: 400, Height: 300},
	}}
	e.engine.handleCreated(h)

	assert.Contains(t, h.calls, "MoveResize")
	assert.Empty(t, e.engine.GetExpectedInstances("app-x"))
	assert.True(t, e.store.GetApp("app-x").Instances[0].Assigned)
}

func TestSessionRestoreLifecycle(t *testing.T) {
	e := newEnv(t)
	e.store.SetApp(savedApp("app-x", "doc-1"))

	e.engine.StartRestore()
	assert.True(t, e.engine.CurrentStatus().Restoring)

	h := &fakeHandle{info: types.WindowInfo{
		Class: "app-x", Title: "doc-1", Sequence: 7,
		Frame: types.Geometry{X: 0, Y: 0, Width: 400, Height: 300},
	}}
	e.engine.handleCreated(h)

	// Restore completes synchronously with the immediate scheduler; the
	// engine notices quiescence and ends the session.
	status := e.engine.CurrentStatus()
	assert.False(t, status.Restoring)
	assert.True(t, status.LaunchQuiescent)

	snap := e.tracker.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, progress.StateReady, snap[0].State)
}

func TestClassMigrationRebindsWindow(t *testing.T) {
	e := newEnv(t)
	app := savedApp("Soffice", "sheet.ods")
	app.Instances[0].Sequence = 8
	app.Instances[0].Assigned = true
	e.store.SetApp(app)

	h := &fakeHandle{info: types.WindowInfo{
		Class: "libreoffice-calc", Title: "sheet.ods", Sequence: 8,
		Frame: types.Geometry{X: 10, Y: 10, Width: 900, Height: 700},
	}}
	e.engine.handleClassChanged(h, "Soffice")

	assert.Nil(t, e.store.GetApp("Soffice"))
	require.NotNil(t, e.store.GetApp("libreoffice-calc"))
	assert.Equal(t, 1, e.engine.LiveCount("libreoffice-calc"))
}

func TestResetAssignments(t *testing.T) {
	e := newEnv(t)
	e.store.SetApp(savedApp("Code", "a", "b"))

	h := &fakeHandle{info: types.WindowInfo{
		Class: "Code", Title: "a", Sequence: 9,
		Frame: types.Geometry{X: 500, Y: 500, Width: 600, Height: 400},
	}}
	e.engine.handleCreated(h)
	require.Equal(t, 1, e.engine.LiveCount("Code"))

	e.engine.ResetAssignments()

	assert.Zero(t, e.engine.LiveCountTotal())
	for _, inst := range e.store.GetApp("Code").Instances {
		assert.False(t, inst.Assigned)
	}
}

func TestCleanupOrphanedInstances(t *testing.T) {
	e := newEnv(t)
	app := savedApp("Code", "a", "b")
	app.Instances[0].Assigned = true
	app.Instances[1].Assigned = true
	e.store.SetApp(app)

	// No bindings exist, so both assignments are stale.
	cleared := e.engine.CleanupOrphanedInstances()
	assert.Equal(t, 2, cleared)
}
