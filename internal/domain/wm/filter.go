package wm

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/thechief/rememberd/internal/shared/types"
)

// Prefs is the subset of user preferences the filter consults.
type Prefs interface {
	TrackDialogs() bool
	TrackAllWorkspaces() bool
}

// ClassFilter implements Filter with a blacklist of class patterns.
// Patterns are matched case-insensitively; a bare word is a substring
// match, anything with glob metacharacters goes through doublestar.
type ClassFilter struct {
	patterns []string
	source   func() []string
	prefs    Prefs
	active   func() int // current workspace, used when TrackAllWorkspaces is off
}

// NewClassFilter builds a filter from a fixed pattern list.
func NewClassFilter(patterns []string, prefs Prefs, activeWorkspace func() int) *ClassFilter {
	return &ClassFilter{patterns: lower(patterns), prefs: prefs, active: activeWorkspace}
}

// NewDynamicClassFilter builds a filter that re-reads its patterns on every
// check, so blacklist edits in the settings UI apply without a restart.
func NewDynamicClassFilter(source func() []string, prefs Prefs, activeWorkspace func() int) *ClassFilter {
	return &ClassFilter{source: source, prefs: prefs, active: activeWorkspace}
}

func lower(patterns []string) []string {
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return lowered
}

// ShouldTrack reports whether a live window participates in tracking.
// Windows without a class cannot be re-identified and are never tracked.
func (f *ClassFilter) ShouldTrack(win types.WindowInfo) bool {
	if win.Class == "" {
		return false
	}
	if win.Dialog && !f.prefs.TrackDialogs() {
		return false
	}
	if !f.prefs.TrackAllWorkspaces() && f.active != nil && win.Workspace != f.active() {
		return false
	}
	return !f.IsClassBlacklisted(win.Class)
}

// IsClassBlacklisted reports whether the class matches any blacklist
// pattern.
func (f *ClassFilter) IsClassBlacklisted(class string) bool {
	lc := strings.ToLower(class)
	patterns := f.patterns
	if f.source != nil {
		patterns = lower(f.source())
	}
	for _, p := range patterns {
		if strings.ContainsAny(p, "*?[{") {
			if ok, err := doublestar.Match(p, lc); err == nil && ok {
				return true
			}
			continue
		}
		if strings.Contains(lc, p) {
			return true
		}
	}
	return false
}
