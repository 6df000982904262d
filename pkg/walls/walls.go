// Package walls turns wall-candidate polylines into extruded wall
// segments: one rectangle of fixed thickness around every segment of the
// closed polyline, raised to the wall height.
package walls

import (
	"errors"
	"image"
	"log"
	"math"
	"os"

	"github.com/chazu/floorplan3d/pkg/classify"
	"github.com/chazu/floorplan3d/pkg/kernel"
	"github.com/paulmach/orb"
)

var debugEnabled = os.Getenv("FLOORPLAN_LOG_LEVEL") == "debug"

// ErrNoWallsDetected is returned by Build when not a single valid wall
// segment exists. A plan without walls is a failed run, not an empty
// model.
var ErrNoWallsDetected = errors.New("no walls detected")

// Options controls wall geometry. Units are model units (pixels of the
// input plan, treated as millimetres downstream).
type Options struct {
	Thickness      float64
	Height         float64
	MinPolygonArea float64
}

// DefaultOptions returns 2 thick, 50 high walls.
func DefaultOptions() Options {
	return Options{Thickness: 2, Height: 50, MinPolygonArea: 0.01}
}

// Stats counts what happened to the segments of one or more polylines.
// Skipped segments are not errors.
type Stats struct {
	Polylines  int
	Segments   int // valid segments extruded
	ZeroLength int // skipped: p1 == p2
	Invalid    int // skipped: self-intersecting or below MinPolygonArea
}

// Skipped returns the number of degenerate segments dropped.
func (s Stats) Skipped() int { return s.ZeroLength + s.Invalid }

func (s *Stats) add(o Stats) {
	s.Polylines += o.Polylines
	s.Segments += o.Segments
	s.ZeroLength += o.ZeroLength
	s.Invalid += o.Invalid
}

// Rectangle returns the closed footprint around the segment p1-p2, offset
// by thickness/2 on both sides: p1+perp, p1-perp, p2-perp, p2+perp. ok is
// false for a zero-length segment.
func Rectangle(p1, p2 orb.Point, thickness float64) (orb.Ring, bool) {
	dx, dy := p2[0]-p1[0], p2[1]-p1[1]
	length := math.Hypot(dx, dy)
	if length == 0 {
		return nil, false
	}
	half := thickness / 2
	px, py := -dy/length*half, dx/length*half
	return orb.Ring{
		{p1[0] + px, p1[1] + py},
		{p1[0] - px, p1[1] - py},
		{p2[0] - px, p2[1] - py},
		{p2[0] + px, p2[1] + py},
		{p1[0] + px, p1[1] + py},
	}, true
}

// Valid reports whether r is a simple polygon with area above minArea.
func Valid(r orb.Ring, minArea float64) bool {
	if len(r) < 4 {
		return false
	}
	if kernel.FootprintArea(r) <= minArea {
		return false
	}
	return simple(r)
}

// simple checks that no two non-adjacent edges of the closed ring touch.
func simple(r orb.Ring) bool {
	n := len(r) - 1
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if intersects(r[i], r[i+1], r[j], r[j+1]) {
				return false
			}
		}
	}
	return true
}

func intersects(a, b, c, d orb.Point) bool {
	d1 := orient(c, d, a)
	d2 := orient(c, d, b)
	d3 := orient(a, b, c)
	d4 := orient(a, b, d)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(c, d, a)) || (d2 == 0 && onSegment(c, d, b)) ||
		(d3 == 0 && onSegment(a, b, c)) || (d4 == 0 && onSegment(a, b, d))
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}

// Solidify closes polyline into a ring and returns one prism per valid
// segment.
func Solidify(polyline []image.Point, opts Options) ([]kernel.Prism, Stats) {
	st := Stats{Polylines: 1}
	if len(polyline) < 2 {
		return nil, st
	}
	pts := make([]orb.Point, 0, len(polyline)+1)
	for _, p := range polyline {
		pts = append(pts, orb.Point{float64(p.X), float64(p.Y)})
	}
	if !pts[0].Equal(pts[len(pts)-1]) {
		pts = append(pts, pts[0])
	}

	var out []kernel.Prism
	for i := 0; i+1 < len(pts); i++ {
		rect, ok := Rectangle(pts[i], pts[i+1], opts.Thickness)
		if !ok {
			st.ZeroLength++
			continue
		}
		if !Valid(rect, opts.MinPolygonArea) {
			st.Invalid++
			continue
		}
		out = append(out, kernel.Prism{Footprint: rect, Height: opts.Height})
		st.Segments++
	}
	return out, st
}

// Build extrudes every segment of every wall region and unions the
// results into the wall shell.
func Build(regions []classify.Region, opts Options) (*kernel.Solid, Stats, error) {
	var st Stats
	var parts []*kernel.Solid
	for _, r := range regions {
		if r.Kind != classify.Wall {
			continue
		}
		prisms, s := Solidify(r.Polyline, opts)
		for _, p := range prisms {
			solid, err := kernel.Extrude(p.Footprint, p.Height)
			if err != nil {
				// Valid already rejected degenerate rectangles.
				s.Segments--
				s.Invalid++
				continue
			}
			parts = append(parts, solid)
		}
		st.add(s)
	}
	if debugEnabled {
		log.Printf("[walls] %d polylines, %d segments, %d skipped", st.Polylines, st.Segments, st.Skipped())
	}
	if len(parts) == 0 {
		return nil, st, ErrNoWallsDetected
	}
	return kernel.Union(parts...), st, nil
}
