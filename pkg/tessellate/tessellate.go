// Package tessellate turns the final wall solid and the feature record
// into the named meshes handed to exporters. Parts are produced in a
// fixed order: walls first, then one block per stair.
package tessellate

import (
	"errors"
	"fmt"

	"github.com/chazu/floorplan3d/pkg/features"
	"github.com/chazu/floorplan3d/pkg/kernel"
	"github.com/chazu/floorplan3d/pkg/openings"
)

// ErrNoGeometry is returned when the wall solid has no triangles.
var ErrNoGeometry = errors.New("tessellate: solid has no geometry")

// Part names.
const (
	WallsPart   = "walls"
	StairPrefix = "stair-"
)

// Options controls which parts are produced and how they are placed.
type Options struct {
	Stairs      bool    // add stair blocks
	StairHeight float64 // height of stair blocks, usually the wall height
	FlipY       bool    // mirror image rows so the plan reads upright with y up
	Center      bool    // move the wall footprint centre to the origin
}

// transform maps plan coordinates into model space.
type transform struct {
	translation [3]float32
	mirrorY     bool
}

func newTransform(solid *kernel.Solid, opts Options) transform {
	t := transform{mirrorY: opts.FlipY}
	if opts.Center {
		lo, hi := solid.BoundingBox()
		cx, cy := (lo[0]+hi[0])/2, (lo[1]+hi[1])/2
		if opts.FlipY {
			cy = -cy
		}
		t.translation = [3]float32{float32(-cx), float32(-cy), 0}
	}
	return t
}

// apply returns a transformed copy of m. Mirroring reverses the winding
// of every triangle so faces keep pointing outward.
func (t transform) apply(m *kernel.Mesh) *kernel.Mesh {
	out := &kernel.Mesh{
		Vertices: make([]float32, len(m.Vertices)),
		Normals:  make([]float32, len(m.Normals)),
		Indices:  make([]uint32, len(m.Indices)),
		PartName: m.PartName,
	}
	copy(out.Vertices, m.Vertices)
	copy(out.Normals, m.Normals)
	copy(out.Indices, m.Indices)

	for i := 0; i+2 < len(out.Vertices); i += 3 {
		if t.mirrorY {
			out.Vertices[i+1] = -out.Vertices[i+1]
		}
		out.Vertices[i] += t.translation[0]
		out.Vertices[i+1] += t.translation[1]
		out.Vertices[i+2] += t.translation[2]
	}
	if t.mirrorY {
		for i := 1; i < len(out.Normals); i += 3 {
			out.Normals[i] = -out.Normals[i]
		}
		for i := 0; i+2 < len(out.Indices); i += 3 {
			out.Indices[i+1], out.Indices[i+2] = out.Indices[i+2], out.Indices[i+1]
		}
	}
	return out
}

// Parts produces one mesh per part: the wall solid named "walls" and,
// when enabled, a block per stair box named "stair-N". The inputs are
// never mutated.
func Parts(solid *kernel.Solid, rec features.Record, opts Options) ([]*kernel.Mesh, error) {
	if solid.IsEmpty() {
		return nil, ErrNoGeometry
	}
	t := newTransform(solid, opts)

	walls := t.apply(solid.Mesh)
	walls.PartName = WallsPart
	meshes := []*kernel.Mesh{walls}

	if !opts.Stairs || opts.StairHeight <= 0 {
		return meshes, nil
	}
	for i, b := range rec.Stairs {
		if b.Empty() {
			continue
		}
		block, err := kernel.Extrude(openings.Footprint(b), opts.StairHeight)
		if err != nil {
			return nil, fmt.Errorf("tessellate: stair %d: %w", i, err)
		}
		m := t.apply(block.Mesh)
		m.PartName = fmt.Sprintf("%s%d", StairPrefix, i)
		meshes = append(meshes, m)
	}
	return meshes, nil
}

// Merge concatenates parts into one mesh, for formats without named
// parts.
func Merge(parts []*kernel.Mesh) *kernel.Mesh {
	out := &kernel.Mesh{PartName: WallsPart}
	for _, p := range parts {
		out.Append(p)
	}
	return out
}
