//go:build manifold

// Package manifold provides a CGo-based boolean backend binding to the
// Manifold library (https://github.com/elalish/manifold). Manifold provides
// guaranteed-manifold mesh boolean operations.
//
// This package requires the Manifold C library (manifoldc) to be installed.
// Build with: go build -tags=manifold
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"context"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/chazu/floorplan3d/pkg/kernel"
)

// Compile-time interface check.
var _ kernel.Kernel = (*ManifoldKernel)(nil)

func init() {
	kernel.Register("manifold", func(kernel.Options) (kernel.Kernel, error) {
		return New()
	})
}

// handle wraps a C ManifoldManifold pointer with a Go-side finalizer
// for automatic memory management.
type handle struct {
	ptr *C.ManifoldManifold
}

func newHandle(ptr *C.ManifoldManifold) *handle {
	h := &handle{ptr: ptr}
	runtime.SetFinalizer(h, func(h *handle) {
		if h.ptr != nil {
			C.manifold_delete_manifold(h.ptr)
			h.ptr = nil
		}
	})
	return h
}

// ManifoldKernel implements kernel.Kernel using the Manifold C library.
type ManifoldKernel struct{}

// New creates a new ManifoldKernel.
func New() (kernel.Kernel, error) {
	return &ManifoldKernel{}, nil
}

func (k *ManifoldKernel) Name() string { return "manifold" }

// Probe always succeeds; the library is linked in.
func (k *ManifoldKernel) Probe(context.Context) error { return nil }

// Difference returns a - b. Solids are rebuilt from their prisms because
// the flat-shaded meshes built by kernel.Extrude do not share vertices
// and Manifold rejects them as non-manifold.
func (k *ManifoldKernel) Difference(ctx context.Context, a, b *kernel.Solid) (*kernel.Solid, error) {
	ha, err := fromPrisms(a)
	if err != nil {
		return nil, fmt.Errorf("%w: minuend: %v", kernel.ErrBooleanFailed, err)
	}
	hb, err := fromPrisms(b)
	if err != nil {
		return nil, fmt.Errorf("%w: subtrahend: %v", kernel.ErrBooleanFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", kernel.ErrBooleanFailed, err)
	}

	alloc := C.manifold_alloc_manifold()
	diff := newHandle(C.manifold_difference(alloc, ha.ptr, hb.ptr))
	runtime.KeepAlive(ha)
	runtime.KeepAlive(hb)

	mesh, err := toMesh(diff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kernel.ErrBooleanFailed, err)
	}
	if mesh.IsEmpty() {
		return nil, fmt.Errorf("%w: manifold produced an empty mesh", kernel.ErrBooleanFailed)
	}
	return &kernel.Solid{Mesh: mesh}, nil
}

// fromPrisms extrudes every prism and unions them in Manifold.
func fromPrisms(s *kernel.Solid) (*handle, error) {
	if s == nil || len(s.Prisms) == 0 {
		return nil, fmt.Errorf("solid has no prism provenance")
	}
	var acc *handle
	for _, p := range s.Prisms {
		h := extrude(p)
		if acc == nil {
			acc = h
			continue
		}
		alloc := C.manifold_alloc_manifold()
		next := newHandle(C.manifold_union(alloc, acc.ptr, h.ptr))
		runtime.KeepAlive(acc)
		runtime.KeepAlive(h)
		acc = next
	}
	return acc, nil
}

func extrude(p kernel.Prism) *handle {
	pts := p.Footprint
	if len(pts) > 1 && pts[0].Equal(pts[len(pts)-1]) {
		pts = pts[:len(pts)-1]
	}
	// Manifold expects counter-clockwise outlines.
	if kernel.SignedArea(pts) < 0 {
		rev := make([]C.ManifoldVec2, len(pts))
		for i, pt := range pts {
			rev[len(pts)-1-i] = C.ManifoldVec2{x: C.double(pt[0]), y: C.double(pt[1])}
		}
		return extrudeVecs(rev, p.Height)
	}
	vs := make([]C.ManifoldVec2, len(pts))
	for i, pt := range pts {
		vs[i] = C.ManifoldVec2{x: C.double(pt[0]), y: C.double(pt[1])}
	}
	return extrudeVecs(vs, p.Height)
}

func extrudeVecs(vs []C.ManifoldVec2, height float64) *handle {
	simple := C.manifold_simple_polygon(C.manifold_alloc_simple_polygon(),
		(*C.ManifoldVec2)(unsafe.Pointer(&vs[0])), C.size_t(len(vs)))
	defer C.manifold_delete_simple_polygon(simple)

	list := []*C.ManifoldSimplePolygon{simple}
	polys := C.manifold_polygons(C.manifold_alloc_polygons(),
		(**C.ManifoldSimplePolygon)(unsafe.Pointer(&list[0])), C.size_t(1))
	defer C.manifold_delete_polygons(polys)

	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_extrude(alloc, polys,
		C.double(height),
		C.int(0),      // slices
		C.double(0),   // twist
		C.double(1.0), // scale x
		C.double(1.0), // scale y
	)
	return newHandle(ptr)
}

// toMesh extracts a triangle mesh using Manifold's MeshGL format. The
// first three vertex properties are positions; normals are recomputed.
func toMesh(h *handle) (*kernel.Mesh, error) {
	meshAlloc := C.manifold_alloc_meshgl()
	meshGL := C.manifold_get_meshgl(meshAlloc, h.ptr)
	defer C.manifold_delete_meshgl(meshGL)
	runtime.KeepAlive(h)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))
	if numVert == 0 || numTri == 0 {
		return &kernel.Mesh{}, nil
	}

	numProp := int(C.manifold_meshgl_num_prop(meshGL))
	propData := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties(
		(*C.float)(unsafe.Pointer(&propData[0])),
		meshGL,
	)

	indices := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts(
		(*C.uint32_t)(unsafe.Pointer(&indices[0])),
		meshGL,
	)

	vertices := make([]float32, numVert*3)
	for i := 0; i < numVert; i++ {
		base := i * numProp
		vertices[i*3+0] = propData[base+0]
		vertices[i*3+1] = propData[base+1]
		vertices[i*3+2] = propData[base+2]
	}

	mesh := &kernel.Mesh{
		Vertices: vertices,
		Normals:  kernel.SmoothNormals(vertices, indices),
		Indices:  indices,
	}
	if mesh.VertexCount() != numVert {
		return nil, fmt.Errorf("manifold: vertex count mismatch: got %d, expected %d",
			mesh.VertexCount(), numVert)
	}
	return mesh, nil
}
