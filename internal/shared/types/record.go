package types

// SchemaVersion is the current version of the persisted document layout.
// Older documents are migrated forward by the store before any component
// observes them.
const SchemaVersion = 3

// Geometry is an absolute pixel rectangle.
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether the rectangle carries no size information.
func (g Geometry) IsZero() bool {
	return g.Width == 0 && g.Height == 0
}

// PercentGeometry is a rectangle stored as fractions of its monitor's
// geometry. It survives resolution and DPI changes, so it is the preferred
// placement representation; absolute pixels are the fallback.
type PercentGeometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// StateFlags holds the remembered boolean window states.
type StateFlags struct {
	Maximized   bool `json:"maximized,omitempty"`
	Minimized   bool `json:"minimized,omitempty"`
	Sticky      bool `json:"sticky,omitempty"`
	AlwaysOnTop bool `json:"always_on_top,omitempty"`
	Fullscreen  bool `json:"fullscreen,omitempty"`
	Shaded      bool `json:"shaded,omitempty"`
	SkipTaskbar bool `json:"skip_taskbar,omitempty"`
}

// InstanceRecord is one remembered window of a class.
//
// Identity is a composite: Sequence is only reliable within one compositor
// session, WindowID is derived from the window description and survives
// restarts. At most one live window may hold a record at a time; Assigned
// partitions the set and is reset at session start, never implicitly.
type InstanceRecord struct {
	ID         string `json:"id"`
	Sequence   uint64 `json:"sequence,omitempty"`
	WindowID   string `json:"window_id,omitempty"`
	Title      string `json:"title,omitempty"`
	TitleRegex string `json:"title_regex,omitempty"`

	// Captured launch context, used when no plugin declares executables.
	CommandLine  []string `json:"command_line,omitempty"`
	WorkingDir   string   `json:"working_dir,omitempty"`
	DocumentPath string   `json:"document_path,omitempty"`

	PercentGeom  *PercentGeometry `json:"geometry_percent,omitempty"`
	AbsoluteGeom *Geometry        `json:"geometry_absolute,omitempty"`
	MonitorID    string           `json:"monitor_id,omitempty"`
	MonitorIndex int              `json:"monitor_index"`
	Workspace    int              `json:"workspace"`
	Flags        StateFlags       `json:"flags"`

	Autostart bool `json:"autostart,omitempty"`

	// Assigned marks the record as bound to a live window. Runtime state,
	// not persisted.
	Assigned bool `json:"-"`
}

// HasGeometry reports whether the record carries any placement at all.
// Records without geometry are useless and are swept by the reconciler.
func (r *InstanceRecord) HasGeometry() bool {
	return r.PercentGeom != nil || (r.AbsoluteGeom != nil && !r.AbsoluteGeom.IsZero())
}

// AppRecord groups the remembered instances of one window class. It
// exclusively owns its InstanceRecords; class migration moves ownership
// between two AppRecords atomically.
type AppRecord struct {
	Class        string            `json:"class"`
	DesktopEntry string            `json:"desktop_entry,omitempty"`
	Instances    []*InstanceRecord `json:"instances"`
}

// Unassigned returns the instances not currently bound to a live window,
// preserving list order.
func (a *AppRecord) Unassigned() []*InstanceRecord {
	out := make([]*InstanceRecord, 0, len(a.Instances))
	for _, inst := range a.Instances {
		if !inst.Assigned {
			out = append(out, inst)
		}
	}
	return out
}

// Remove drops the instance with the given id, reporting whether it was
// present.
func (a *AppRecord) Remove(instanceID string) bool {
	for i, inst := range a.Instances {
		if inst.ID == instanceID {
			a.Instances = append(a.Instances[:i], a.Instances[i+1:]...)
			return true
		}
	}
	return false
}

// MonitorInfo identifies a physical monitor. ID is opaque (EDID serial,
// connector name, or index as a last resort); the layout fingerprint
// (resolution plus offset from primary) is used when ids do not survive a
// cable swap.
type MonitorInfo struct {
	ID        string   `json:"id"`
	Connector string   `json:"connector,omitempty"`
	Index     int      `json:"index"`
	Primary   bool     `json:"primary,omitempty"`
	Frame     Geometry `json:"frame"`
}

// Fingerprint returns the layout fingerprint used as a monitor lookup key of
// last resort.
func (m MonitorInfo) Fingerprint() string {
	return fingerprint(m.Frame)
}
