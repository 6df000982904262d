// Package sdfx implements the kernel.Kernel boolean interface using the
// github.com/deadsy/sdfx SDF-based CAD library. Solids are rebuilt from
// their prisms as signed distance fields, subtracted, and tessellated
// with marching cubes, so the result is an approximation whose accuracy
// depends on the mesh cell count.
package sdfx

import (
	"context"
	"fmt"

	"github.com/chazu/floorplan3d/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// defaultMeshCells controls marching cubes tessellation resolution.
const defaultMeshCells = 200

func init() {
	kernel.Register("sdfx", func(opts kernel.Options) (kernel.Kernel, error) {
		return New(opts.MeshCells), nil
	})
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	cells int
}

// New returns a new SdfxKernel. cells <= 0 selects the default resolution.
func New(cells int) *SdfxKernel {
	if cells <= 0 {
		cells = defaultMeshCells
	}
	return &SdfxKernel{cells: cells}
}

func (k *SdfxKernel) Name() string { return "sdfx" }

// Probe always succeeds; sdfx is linked in.
func (k *SdfxKernel) Probe(context.Context) error { return nil }

// Difference returns a - b. Both solids must still carry their prisms.
// The context is checked before tessellation only; marching cubes itself
// cannot be interrupted, callers bound it with a timeout.
func (k *SdfxKernel) Difference(ctx context.Context, a, b *kernel.Solid) (*kernel.Solid, error) {
	sa, err := fromPrisms(a)
	if err != nil {
		return nil, fmt.Errorf("%w: minuend: %v", kernel.ErrBooleanFailed, err)
	}
	sb, err := fromPrisms(b)
	if err != nil {
		return nil, fmt.Errorf("%w: subtrahend: %v", kernel.ErrBooleanFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", kernel.ErrBooleanFailed, err)
	}

	mesh := k.toMesh(sdf.Difference3D(sa, sb))
	if mesh.IsEmpty() {
		return nil, fmt.Errorf("%w: sdfx produced an empty mesh", kernel.ErrBooleanFailed)
	}
	return &kernel.Solid{Mesh: mesh}, nil
}

// fromPrisms builds the union of a solid's prisms as an SDF3.
func fromPrisms(s *kernel.Solid) (sdf.SDF3, error) {
	if s == nil || len(s.Prisms) == 0 {
		return nil, fmt.Errorf("solid has no prism provenance")
	}
	parts := make([]sdf.SDF3, 0, len(s.Prisms))
	for i, p := range s.Prisms {
		part, err := prism(p)
		if err != nil {
			return nil, fmt.Errorf("prism %d: %w", i, err)
		}
		parts = append(parts, part)
	}
	return sdf.Union3D(parts...), nil
}

// prism extrudes the footprint and lifts it so the base sits at z=0.
// sdf.Extrude3D centers the extrusion on the XY plane.
func prism(p kernel.Prism) (sdf.SDF3, error) {
	pts := p.Footprint
	if len(pts) > 1 && pts[0].Equal(pts[len(pts)-1]) {
		pts = pts[:len(pts)-1]
	}
	vs := make([]v2.Vec, len(pts))
	for i, pt := range pts {
		vs[i] = v2.Vec{X: pt[0], Y: pt[1]}
	}
	s2, err := sdf.Polygon2D(vs)
	if err != nil {
		return nil, err
	}
	s3 := sdf.Extrude3D(s2, p.Height)
	m := sdf.Translate3d(v3.Vec{X: 0, Y: 0, Z: p.Height / 2})
	return sdf.Transform3D(s3, m), nil
}

// toMesh converts an SDF to a triangle mesh using marching cubes.
func (k *SdfxKernel) toMesh(s sdf.SDF3) *kernel.Mesh {
	renderer := render.NewMarchingCubesUniform(k.cells)
	triangles := render.ToTriangles(s, renderer)

	numVerts := len(triangles) * 3
	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		n := tri.Normal()
		nx, ny, nz := float32(n.X), float32(n.Y), float32(n.Z)

		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}
}
