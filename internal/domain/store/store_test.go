package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/shared/types"
)

func newTestStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	return New(backend, 10*time.Millisecond, logging.NewNop(), nil)
}

func TestLoadEmpty(t *testing.T) {
	s := newTestStore(t, &MemoryBackend{})
	require.NoError(t, s.Load())
	assert.Empty(t, s.AllApps())
}

func TestSetGetRemove(t *testing.T) {
	s := newTestStore(t, &MemoryBackend{})
	require.NoError(t, s.Load())

	s.SetApp(&types.AppRecord{Class: "Code", Instances: []*types.InstanceRecord{{ID: "inst_1"}}})

	app := s.GetApp("Code")
	require.NotNil(t, app)
	assert.Len(t, app.Instances, 1)

	s.RemoveApp("Code")
	assert.Nil(t, s.GetApp("Code"))
}

func TestDebouncedSave(t *testing.T) {
	backend := &MemoryBackend{}
	s := newTestStore(t, backend)
	require.NoError(t, s.Load())

	// Burst of mutations collapses into one write.
	for i := 0; i < 5; i++ {
		s.SetApp(&types.AppRecord{Class: "Code"})
	}
	assert.Equal(t, 0, backend.Writes)

	assert.Eventually(t, func() bool { return backend.Writes == 1 },
		time.Second, 5*time.Millisecond)
}

func TestLatchesSuppressSaves(t *testing.T) {
	backend := &MemoryBackend{}
	s := newTestStore(t, backend)
	require.NoError(t, s.Load())

	s.SetRestoreInProgress(true)
	s.SetApp(&types.AppRecord{Class: "Code"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, backend.Writes)

	// Clearing the latch with dirty state flushes it.
	s.SetRestoreInProgress(false)
	assert.Eventually(t, func() bool { return backend.Writes == 1 },
		time.Second, 5*time.Millisecond)

	s.SetShuttingDown()
	s.SetApp(&types.AppRecord{Class: "Other"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, backend.Writes)
}

func TestAutoSaveCallback(t *testing.T) {
	backend := &MemoryBackend{}
	s := newTestStore(t, backend)
	require.NoError(t, s.Load())

	saved := make(chan struct{}, 1)
	s.OnAutoSave(func() { saved <- struct{}{} })

	s.SetApp(&types.AppRecord{Class: "Code"})

	select {
	case <-saved:
	case <-time.After(time.Second):
		t.Fatal("auto-save callback never fired")
	}
}

func TestPersistRoundTrip(t *testing.T) {
	backend := &MemoryBackend{}
	s := newTestStore(t, backend)
	require.NoError(t, s.Load())

	s.SetApp(&types.AppRecord{
		Class: "Code",
		Instances: []*types.InstanceRecord{{
			ID:          "inst_1",
			Title:       "project - Code",
			Workspace:   2,
			PercentGeom: &types.PercentGeometry{X: 0.1, Y: 0.1, Width: 0.5, Height: 0.5},
		}},
	})
	s.SetMonitor(types.MonitorInfo{ID: "EDID-123", Index: 0, Primary: true,
		Frame: types.Geometry{Width: 1920, Height: 1080}})
	require.NoError(t, s.Flush())

	reloaded := newTestStore(t, backend)
	require.NoError(t, reloaded.Load())

	app := reloaded.GetApp("Code")
	require.NotNil(t, app)
	require.Len(t, app.Instances, 1)
	assert.Equal(t, 2, app.Instances[0].Workspace)
	assert.False(t, app.Instances[0].Assigned, "assigned flag must reset on load")
	assert.Contains(t, reloaded.Monitors(), "EDID-123")
}

func TestMigrateBackfillsIDs(t *testing.T) {
	doc := &Document{
		Version: 1,
		Apps: map[string]*types.AppRecord{
			"Code": {Instances: []*types.InstanceRecord{{Title: "old"}}},
		},
	}

	out, err := Migrate(doc)
	require.NoError(t, err)

	assert.Equal(t, types.SchemaVersion, out.Version)
	app := out.Apps["Code"]
	assert.Equal(t, "Code", app.Class)
	assert.NotEmpty(t, app.Instances[0].ID)
}

func TestMigrateRejectsNewer(t *testing.T) {
	_, err := Migrate(&Document{Version: types.SchemaVersion + 1})
	assert.Error(t, err)
}
