// Package geometry converts window rectangles between absolute pixels and
// percent-of-monitor fractions and provides the placement helpers used by
// the position restorer and the identity matcher.
package geometry

import (
	"math"

	"github.com/thechief/rememberd/internal/shared/types"
)

// Minimum window size floor applied after percent conversion so rounding or
// stale data never produces an unusable sliver.
const (
	MinWidth  = 120
	MinHeight = 80
)

// ToPercent derives the percent-of-monitor rectangle for a frame on the
// given monitor.
func ToPercent(frame types.Geometry, monitor types.Geometry) types.PercentGeometry {
	if monitor.Width == 0 || monitor.Height == 0 {
		return types.PercentGeometry{}
	}
	return types.PercentGeometry{
		X:      float64(frame.X-monitor.X) / float64(monitor.Width),
		Y:      float64(frame.Y-monitor.Y) / float64(monitor.Height),
		Width:  float64(frame.Width) / float64(monitor.Width),
		Height: float64(frame.Height) / float64(monitor.Height),
	}
}

// FromPercent materializes a percent rectangle against a monitor frame.
func FromPercent(pct types.PercentGeometry, monitor types.Geometry) types.Geometry {
	return types.Geometry{
		X:      monitor.X + int(math.Round(pct.X*float64(monitor.Width))),
		Y:      monitor.Y + int(math.Round(pct.Y*float64(monitor.Height))),
		Width:  int(math.Round(pct.Width * float64(monitor.Width))),
		Height: int(math.Round(pct.Height * float64(monitor.Height))),
	}
}

// ClampSize enforces the minimum size floor.
func ClampSize(g types.Geometry) types.Geometry {
	if g.Width < MinWidth {
		g.Width = MinWidth
	}
	if g.Height < MinHeight {
		g.Height = MinHeight
	}
	return g
}

// ClampToMonitor moves and shrinks the rectangle as needed so it lies fully
// inside the monitor frame.
func ClampToMonitor(g types.Geometry, monitor types.Geometry) types.Geometry {
	if g.Width > monitor.Width {
		g.Width = monitor.Width
	}
	if g.Height > monitor.Height {
		g.Height = monitor.Height
	}
	if g.X < monitor.X {
		g.X = monitor.X
	}
	if g.Y < monitor.Y {
		g.Y = monitor.Y
	}
	if g.X+g.Width > monitor.X+monitor.Width {
		g.X = monitor.X + monitor.Width - g.Width
	}
	if g.Y+g.Height > monitor.Y+monitor.Height {
		g.Y = monitor.Y + monitor.Height - g.Height
	}
	return g
}

// Proximity scores how close two rectangles are: the inverse of the summed
// coordinate and size deltas, capped at 1.0 for identical frames. Used as a
// weak identity signal by the matcher.
func Proximity(a, b types.Geometry) float64 {
	delta := abs(a.X-b.X) + abs(a.Y-b.Y) + abs(a.Width-b.Width) + abs(a.Height-b.Height)
	return 1.0 / float64(1+delta)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
