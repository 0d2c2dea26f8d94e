package wm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thechief/rememberd/internal/shared/types"
)

type stubPrefs struct {
	dialogs    bool
	workspaces bool
}

func (p stubPrefs) TrackDialogs() bool       { return p.dialogs }
func (p stubPrefs) TrackAllWorkspaces() bool { return p.workspaces }

func TestIsClassBlacklisted(t *testing.T) {
	f := NewClassFilter([]string{"conky", "plank", "Webapp-*"}, stubPrefs{workspaces: true}, nil)

	assert.True(t, f.IsClassBlacklisted("Conky"))
	assert.True(t, f.IsClassBlacklisted("org.conky.main"))
	assert.True(t, f.IsClassBlacklisted("webapp-chatgpt"))
	assert.False(t, f.IsClassBlacklisted("Code"))
}

func TestShouldTrack(t *testing.T) {
	f := NewClassFilter([]string{"plank"}, stubPrefs{workspaces: true}, nil)

	assert.True(t, f.ShouldTrack(types.WindowInfo{Class: "Code"}))
	assert.False(t, f.ShouldTrack(types.WindowInfo{Class: ""}))
	assert.False(t, f.ShouldTrack(types.WindowInfo{Class: "Plank"}))
	assert.False(t, f.ShouldTrack(types.WindowInfo{Class: "Code", Dialog: true}))

	withDialogs := NewClassFilter(nil, stubPrefs{dialogs: true, workspaces: true}, nil)
	assert.True(t, withDialogs.ShouldTrack(types.WindowInfo{Class: "Code", Dialog: true}))
}

func TestShouldTrackWorkspaceScope(t *testing.T) {
	current := 2
	f := NewClassFilter(nil, stubPrefs{}, func() int { return current })

	assert.True(t, f.ShouldTrack(types.WindowInfo{Class: "Code", Workspace: 2}))
	assert.False(t, f.ShouldTrack(types.WindowInfo{Class: "Code", Workspace: 5}))
}

func TestDynamicFilterTracksPatternChanges(t *testing.T) {
	patterns := []string{}
	f := NewDynamicClassFilter(func() []string { return patterns }, stubPrefs{workspaces: true}, nil)

	assert.False(t, f.IsClassBlacklisted("Plank"))
	patterns = []string{"plank"}
	assert.True(t, f.IsClassBlacklisted("Plank"))
}
