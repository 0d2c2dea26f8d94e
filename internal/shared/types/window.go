package types

import "fmt"

// WindowInfo is a point-in-time snapshot of a live window. It is a value
// type: components pass it around freely without sharing window-manager
// state.
type WindowInfo struct {
	Class    string
	Title    string
	Sequence uint64 // per-session stable sequence from the window manager
	StableID string // cross-restart id derived from the window description

	Workspace    int
	MonitorID    string
	MonitorIndex int
	Frame        Geometry
	Flags        StateFlags

	Dialog bool
}

// String implements fmt.Stringer for log output.
func (w WindowInfo) String() string {
	return fmt.Sprintf("%s[seq=%d ws=%d %dx%d+%d+%d]",
		w.Class, w.Sequence, w.Workspace,
		w.Frame.Width, w.Frame.Height, w.Frame.X, w.Frame.Y)
}

func fingerprint(g Geometry) string {
	return fmt.Sprintf("%dx%d@%d,%d", g.Width, g.Height, g.X, g.Y)
}
