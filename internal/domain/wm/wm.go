// Package wm defines the window-manager collaborator surface.
//
// The daemon never talks to a compositor directly; it consumes these
// interfaces. A binding (Hyprland, X11, Mutter, ...) implements them and
// feeds events into the engine in emission order.
package wm

import (
	"github.com/thechief/rememberd/internal/shared/types"
)

// Handle is a live window the restorer can mutate. All mutations are best
// effort: the window may disappear at any point, and implementations return
// an error once it has.
type Handle interface {
	Info() types.WindowInfo

	MoveResize(g types.Geometry) error
	MoveToWorkspace(index int) error

	Maximize() error
	Unmaximize() error
	Minimize() error
	Unminimize() error

	SetSticky(on bool) error
	SetAlwaysOnTop(on bool) error
	SetFullscreen(on bool) error
	SetShaded(on bool) error
}

// EventKind discriminates window notifications.
type EventKind int

const (
	EventCreated EventKind = iota
	EventChanged
	EventDestroyed
	EventClassChanged
)

// Event is one window notification from the binding. OldClass is set only
// for EventClassChanged.
type Event struct {
	Kind     EventKind
	Window   Handle
	OldClass string
}

// Source enumerates live windows and delivers change notifications.
type Source interface {
	// Windows returns the current live window set.
	Windows() []Handle
	// Events returns the notification stream. Events arrive in
	// window-manager emission order.
	Events() <-chan Event
}

// Monitors resolves saved monitor identity against the current layout.
type Monitors interface {
	ByID(id string) (types.MonitorInfo, bool)
	ByConnector(connector string) (types.MonitorInfo, bool)
	ByFingerprint(fp string) (types.MonitorInfo, bool)
	ByIndex(index int) (types.MonitorInfo, bool)
	Primary() types.MonitorInfo
	All() []types.MonitorInfo
}

// Filter decides whether a live window participates in tracking at all.
type Filter interface {
	ShouldTrack(win types.WindowInfo) bool
	IsClassBlacklisted(class string) bool
}
