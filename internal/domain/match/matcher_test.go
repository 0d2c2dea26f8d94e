package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/shared/types"
)

type stubPatterns map[string]string

func (s stubPatterns) TitlePattern(class string) string { return s[class] }

func newTestMatcher() *Matcher {
	return New(stubPatterns{}, logging.NewNop(), nil)
}

func appWith(instances ...*types.InstanceRecord) *types.AppRecord {
	return &types.AppRecord{Class: "Code", Instances: instances}
}

func TestStableIDWinsOverEverything(t *testing.T) {
	m := newTestMatcher()

	// The decoy matches on title, workspace, monitor and geometry; the
	// stable-id record matches nothing else.
	decoy := &types.InstanceRecord{
		ID: "inst_decoy", Title: "main.go - proj - Code", Workspace: 1,
		MonitorID: "A", AbsoluteGeom: &types.Geometry{X: 100, Y: 100, Width: 800, Height: 600},
	}
	byID := &types.InstanceRecord{ID: "inst_byid", WindowID: "os-42", Title: "other", Workspace: 7}
	app := appWith(decoy, byID)

	win := types.WindowInfo{
		Class: "Code", Title: "main.go - proj - Code", StableID: "os-42",
		Workspace: 1, MonitorID: "A",
		Frame: types.Geometry{X: 100, Y: 100, Width: 800, Height: 600},
	}

	inst, created := m.Resolve(win, app)
	assert.False(t, created)
	assert.Equal(t, "inst_byid", inst.ID)
	assert.True(t, inst.Assigned)
}

func TestSequenceAndTitleShortCircuit(t *testing.T) {
	m := newTestMatcher()

	bySeq := &types.InstanceRecord{ID: "inst_seq", Sequence: 11}
	app := appWith(&types.InstanceRecord{ID: "inst_other"}, bySeq)

	inst, created := m.Resolve(types.WindowInfo{Class: "Code", Sequence: 11}, app)
	assert.False(t, created)
	assert.Equal(t, "inst_seq", inst.ID)

	byTitle := &types.InstanceRecord{ID: "inst_title", Title: "notes.txt - Editor"}
	app = appWith(&types.InstanceRecord{ID: "inst_first"}, byTitle)

	inst, _ = m.Resolve(types.WindowInfo{Class: "Code", Title: "notes.txt - Editor"}, app)
	assert.Equal(t, "inst_title", inst.ID)
}

func TestScoredMatchPrefersProjectSegment(t *testing.T) {
	m := newTestMatcher()

	sameProject := &types.InstanceRecord{ID: "inst_proj", Title: "old_file.go - myproject - Code"}
	otherProject := &types.InstanceRecord{ID: "inst_other", Title: "x.go - unrelated - Code"}
	app := appWith(otherProject, sameProject)

	win := types.WindowInfo{
		Class: "Code", Title: "new_file.go - myproject - Code",
		Frame: types.Geometry{X: 400, Y: 300, Width: 800, Height: 600},
	}

	inst, created := m.Resolve(win, app)
	assert.False(t, created)
	assert.Equal(t, "inst_proj", inst.ID)
}

func TestFuzzyBounds(t *testing.T) {
	assert.Zero(t, fuzzySimilarity("short", "short"), "titles at or under the length floor skip fuzzy")
	assert.Zero(t, fuzzySimilarity("exactly123", "exactly123"))
	assert.Zero(t, fuzzySimilarity("a long enough title", "a long enough title but more than twice the length of the other one"),
		"length ratio above 2 skips fuzzy")

	sim := fuzzySimilarity("my document title", "my document titles")
	assert.Greater(t, sim, 0.9)
	assert.LessOrEqual(t, sim, 1.0)
}

func TestOriginPenalty(t *testing.T) {
	m := newTestMatcher()

	positioned := types.WindowInfo{Class: "Code", Workspace: 3,
		Frame: types.Geometry{X: 600, Y: 400, Width: 800, Height: 600}}
	unpositioned := types.WindowInfo{Class: "Code", Workspace: 3,
		Frame: types.Geometry{X: 10, Y: 10, Width: 800, Height: 600}}

	c := &types.InstanceRecord{ID: "inst", Workspace: 3}
	assert.Greater(t, m.score(positioned, c), m.score(unpositioned, c))
}

func TestFallbackToFirstUnassigned(t *testing.T) {
	m := newTestMatcher()

	first := &types.InstanceRecord{ID: "inst_first", Title: "something else entirely", Workspace: 9}
	second := &types.InstanceRecord{ID: "inst_second", Title: "also unrelated", Workspace: 8}
	app := appWith(first, second)

	// Window matches nothing and scores nothing above zero (origin penalty
	// applies, no overlapping signals).
	win := types.WindowInfo{Class: "Code", Title: "x", Workspace: 2,
		Frame: types.Geometry{X: 5, Y: 5}}

	inst, created := m.Resolve(win, app)
	assert.False(t, created)
	assert.Equal(t, "inst_first", inst.ID)
}

func TestCreateWhenNoCandidates(t *testing.T) {
	m := newTestMatcher()
	app := appWith()

	win := types.WindowInfo{
		Class: "Code", Title: "fresh", Sequence: 5, StableID: "os-9",
		Workspace: 2, MonitorID: "A",
		Frame: types.Geometry{X: 50, Y: 60, Width: 700, Height: 500},
	}

	inst, created := m.Resolve(win, app)
	assert.True(t, created)
	require.Len(t, app.Instances, 1)
	assert.True(t, inst.Assigned)
	assert.Equal(t, uint64(5), inst.Sequence)
	assert.Equal(t, "os-9", inst.WindowID)
	assert.Equal(t, "fresh", inst.Title)
	require.NotNil(t, inst.AbsoluteGeom)
	assert.Equal(t, 700, inst.AbsoluteGeom.Width)
}

func TestNoDoubleBindingWithinPass(t *testing.T) {
	m := newTestMatcher()

	only := &types.InstanceRecord{ID: "inst_only", Title: "shared title"}
	app := appWith(only)

	w1 := types.WindowInfo{Class: "Code", Title: "shared title",
		Frame: types.Geometry{X: 200, Y: 200}}
	w2 := types.WindowInfo{Class: "Code", Title: "shared title",
		Frame: types.Geometry{X: 300, Y: 300}}

	first, created := m.Resolve(w1, app)
	assert.False(t, created)
	assert.Equal(t, "inst_only", first.ID)

	second, created := m.Resolve(w2, app)
	assert.True(t, created, "assigned record must not be handed out twice")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRegexErrorsSwallowed(t *testing.T) {
	m := New(stubPatterns{"Code": "(unclosed"}, logging.NewNop(), nil)

	c := &types.InstanceRecord{ID: "inst"}
	win := types.WindowInfo{Class: "Code", Title: "anything",
		Frame: types.Geometry{X: 500, Y: 500}}

	// Must not panic, must not contribute.
	assert.False(t, m.regexHit(win, c))
	_ = m.score(win, c)
}
