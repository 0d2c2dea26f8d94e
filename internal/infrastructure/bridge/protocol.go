package bridge

import (
	"github.com/thechief/rememberd/internal/shared/types"
)

// message is one JSON line from the shim.
//
//	{"type":"sync","windows":[...],"monitors":[...]}
//	{"type":"event","kind":"created","window":{...}}
//	{"type":"event","kind":"class_changed","window":{...},"old_class":"Soffice"}
//	{"type":"monitors","monitors":[...]}
type message struct {
	Type     string        `json:"type"`
	Kind     string        `json:"kind,omitempty"`
	Window   *wireWindow   `json:"window,omitempty"`
	OldClass string        `json:"old_class,omitempty"`
	Windows  []wireWindow  `json:"windows,omitempty"`
	Monitors []wireMonitor `json:"monitors,omitempty"`
}

// command is one JSON line to the shim. Geometry is present for
// move_resize, Index for move_to_workspace, On for the toggle ops.
type command struct {
	Op       string          `json:"op"`
	Sequence uint64          `json:"seq"`
	Geometry *types.Geometry `json:"geometry,omitempty"`
	Index    *int            `json:"index,omitempty"`
	On       *bool           `json:"on,omitempty"`
}

type wireWindow struct {
	Class        string           `json:"class"`
	Title        string           `json:"title"`
	Sequence     uint64           `json:"seq"`
	StableID     string           `json:"stable_id,omitempty"`
	Workspace    int              `json:"workspace"`
	MonitorID    string           `json:"monitor_id,omitempty"`
	MonitorIndex int              `json:"monitor_index"`
	Frame        types.Geometry   `json:"frame"`
	Flags        types.StateFlags `json:"flags"`
	Dialog       bool             `json:"dialog,omitempty"`
}

func (w wireWindow) info() types.WindowInfo {
	return types.WindowInfo{
		Class:        w.Class,
		Title:        w.Title,
		Sequence:     w.Sequence,
		StableID:     w.StableID,
		Workspace:    w.Workspace,
		MonitorID:    w.MonitorID,
		MonitorIndex: w.MonitorIndex,
		Frame:        w.Frame,
		Flags:        w.Flags,
		Dialog:       w.Dialog,
	}
}

type wireMonitor struct {
	ID        string         `json:"id"`
	Connector string         `json:"connector,omitempty"`
	Index     int            `json:"index"`
	Primary   bool           `json:"primary,omitempty"`
	Frame     types.Geometry `json:"frame"`
}

func monitorInfos(in []wireMonitor) []types.MonitorInfo {
	out := make([]types.MonitorInfo, len(in))
	for i, m := range in {
		out[i] = types.MonitorInfo{
			ID:        m.ID,
			Connector: m.Connector,
			Index:     m.Index,
			Primary:   m.Primary,
			Frame:     m.Frame,
		}
	}
	return out
}
