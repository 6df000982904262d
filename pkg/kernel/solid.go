package kernel

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrDegenerateFootprint is returned by Extrude for footprints that
// cannot bound a volume.
var ErrDegenerateFootprint = errors.New("degenerate footprint")

// Prism is a vertical extrusion of a simple polygon. The base sits at z=0.
type Prism struct {
	Footprint orb.Ring // closed, first == last
	Height    float64
}

// Solid is a closed triangle mesh together with the prisms it was built
// from. Prisms is nil for solids produced by a boolean backend.
type Solid struct {
	Mesh   *Mesh
	Prisms []Prism
}

// BoundingBox returns the axis-aligned bounding box.
func (s *Solid) BoundingBox() (min, max [3]float64) {
	if s == nil || s.Mesh == nil {
		return min, max
	}
	return s.Mesh.Bounds()
}

// Volume returns the enclosed volume of the solid's mesh.
func (s *Solid) Volume() float64 {
	if s == nil || s.Mesh == nil {
		return 0
	}
	return s.Mesh.Volume()
}

// IsEmpty reports whether the solid has no geometry.
func (s *Solid) IsEmpty() bool {
	return s == nil || s.Mesh == nil || s.Mesh.IsEmpty()
}

// Extrude builds a capped prism of the given height over footprint. The
// footprint may be open or closed and in either winding; it must be a
// simple polygon with at least three distinct vertices.
func Extrude(footprint orb.Ring, height float64) (*Solid, error) {
	if height <= 0 || math.IsNaN(height) {
		return nil, fmt.Errorf("%w: height %v", ErrDegenerateFootprint, height)
	}
	pts := openRing(footprint)
	if len(pts) < 3 {
		return nil, fmt.Errorf("%w: %d vertices", ErrDegenerateFootprint, len(pts))
	}
	if ringArea(pts) < 0 {
		rev := make([]orb.Point, len(pts))
		for i, p := range pts {
			rev[len(pts)-1-i] = p
		}
		pts = rev
	}
	tris, err := triangulate(pts)
	if err != nil {
		return nil, err
	}

	m := &Mesh{}
	at := func(p orb.Point, z float64) [3]float64 { return [3]float64{p[0], p[1], z} }
	for _, t := range tris {
		a, b, c := pts[t[0]], pts[t[1]], pts[t[2]]
		m.AddTriangle(at(a, height), at(b, height), at(c, height))
		m.AddTriangle(at(a, 0), at(c, 0), at(b, 0))
	}
	for i := range pts {
		p, q := pts[i], pts[(i+1)%len(pts)]
		m.AddTriangle(at(p, 0), at(q, 0), at(q, height))
		m.AddTriangle(at(p, 0), at(q, height), at(p, height))
	}

	closed := append(orb.Ring{}, pts...)
	closed = append(closed, pts[0])
	return &Solid{
		Mesh:   m,
		Prisms: []Prism{{Footprint: closed, Height: height}},
	}, nil
}

// Union combines solids by concatenating their meshes and prism lists.
// The pieces are not fused, so the result is independent of argument
// order and its volume never decreases as solids are added. Nil solids
// are ignored.
func Union(solids ...*Solid) *Solid {
	out := &Solid{Mesh: &Mesh{}}
	hasPrisms := true
	for _, s := range solids {
		if s.IsEmpty() {
			continue
		}
		out.Mesh.Append(s.Mesh)
		if s.Prisms == nil {
			hasPrisms = false
		}
		out.Prisms = append(out.Prisms, s.Prisms...)
	}
	if !hasPrisms {
		out.Prisms = nil
	}
	return out
}

// FootprintArea returns the unsigned area of a ring, open or closed.
func FootprintArea(r orb.Ring) float64 {
	return math.Abs(ringArea(openRing(r)))
}

// openRing drops a closing duplicate vertex and consecutive repeats.
func openRing(r orb.Ring) []orb.Point {
	pts := make([]orb.Point, 0, len(r))
	for _, p := range r {
		if len(pts) > 0 && pts[len(pts)-1].Equal(p) {
			continue
		}
		pts = append(pts, p)
	}
	if len(pts) > 1 && pts[0].Equal(pts[len(pts)-1]) {
		pts = pts[:len(pts)-1]
	}
	return pts
}

// SignedArea returns the signed area of an open or closed ring, positive
// for counter-clockwise winding in a y-up frame.
func SignedArea(r orb.Ring) float64 {
	return ringArea(openRing(r))
}

// ringArea is the signed area, positive for counter-clockwise rings in a
// y-up frame.
func ringArea(pts []orb.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	closed := append(orb.Ring{}, pts...)
	closed = append(closed, pts[0])
	return planar.Area(closed)
}

// triangulate ear-clips a counter-clockwise simple polygon.
func triangulate(pts []orb.Point) ([][3]int, error) {
	idx := make([]int, len(pts))
	for i := range idx {
		idx[i] = i
	}
	var tris [][3]int
	for len(idx) > 3 {
		clipped := false
		for i := range idx {
			a := idx[(i+len(idx)-1)%len(idx)]
			b := idx[i]
			c := idx[(i+1)%len(idx)]
			if cross(pts[a], pts[b], pts[c]) <= 1e-12 {
				continue
			}
			if containsAny(pts, idx, a, b, c) {
				continue
			}
			tris = append(tris, [3]int{a, b, c})
			idx = append(idx[:i], idx[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			return nil, fmt.Errorf("%w: polygon is not simple", ErrDegenerateFootprint)
		}
	}
	if cross(pts[idx[0]], pts[idx[1]], pts[idx[2]]) <= 1e-12 {
		return nil, fmt.Errorf("%w: zero area", ErrDegenerateFootprint)
	}
	return append(tris, [3]int{idx[0], idx[1], idx[2]}), nil
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-b[1]) - (b[1]-a[1])*(c[0]-b[0])
}

func containsAny(pts []orb.Point, idx []int, a, b, c int) bool {
	for _, j := range idx {
		if j == a || j == b || j == c {
			continue
		}
		p := pts[j]
		if cross(pts[a], pts[b], p) >= 0 && cross(pts[b], pts[c], p) >= 0 && cross(pts[c], pts[a], p) >= 0 {
			return true
		}
	}
	return false
}
