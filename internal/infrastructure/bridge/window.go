package bridge

import (
	"github.com/thechief/rememberd/internal/shared/types"
)

// window is the wm.Handle the bridge hands out. Mutations are one-way
// commands; the shim reports the outcome through a later changed event.
type window struct {
	bridge *Bridge
	seq    uint64
	last   types.WindowInfo
}

// Info returns the latest reported snapshot. After the window is destroyed
// the snapshot from the destroy event remains readable.
func (w *window) Info() types.WindowInfo {
	if info, ok := w.bridge.lookup(w.seq); ok {
		w.last = info
		return info
	}
	return w.last
}

func (w *window) send(cmd command) error {
	if _, ok := w.bridge.lookup(w.seq); !ok {
		return ErrWindowGone
	}
	cmd.Sequence = w.seq
	return w.bridge.send(cmd)
}

func (w *window) MoveResize(g types.Geometry) error {
	return w.send(command{Op: "move_resize", Geometry: &g})
}

func (w *window) MoveToWorkspace(index int) error {
	return w.send(command{Op: "move_to_workspace", Index: &index})
}

func (w *window) Maximize() error   { return w.send(command{Op: "maximize"}) }
func (w *window) Unmaximize() error { return w.send(command{Op: "unmaximize"}) }
func (w *window) Minimize() error   { return w.send(command{Op: "minimize"}) }
func (w *window) Unminimize() error { return w.send(command{Op: "unminimize"}) }

func (w *window) SetSticky(on bool) error {
	return w.send(command{Op: "sticky", On: &on})
}

func (w *window) SetAlwaysOnTop(on bool) error {
	return w.send(command{Op: "always_on_top", On: &on})
}

func (w *window) SetFullscreen(on bool) error {
	return w.send(command{Op: "fullscreen", On: &on})
}

func (w *window) SetShaded(on bool) error {
	return w.send(command{Op: "shaded", On: &on})
}
