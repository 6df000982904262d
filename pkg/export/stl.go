package export

import (
	"errors"

	"github.com/chazu/floorplan3d/pkg/kernel"
	"github.com/chazu/floorplan3d/pkg/tessellate"
	"github.com/hschendel/stl"
)

// writeSTL writes the wall parts as one binary STL solid. STL has no
// part names, so stair blocks would fuse with the walls; they are left
// to the glTF formats.
func writeSTL(path string, parts []*kernel.Mesh) error {
	m := tessellate.Merge(wallParts(parts))
	solid := &stl.Solid{Name: "floorplan", Triangles: make([]stl.Triangle, 0, m.TriangleCount())}
	for i := 0; i < m.TriangleCount(); i++ {
		solid.Triangles = append(solid.Triangles, toTriangle(m, i))
	}
	if len(solid.Triangles) == 0 {
		return &Error{Path: path, Op: "stl", Err: errors.New("no triangles to write")}
	}
	if err := solid.WriteFile(path); err != nil {
		return &Error{Path: path, Op: "stl", Err: err}
	}
	return nil
}

func wallParts(parts []*kernel.Mesh) []*kernel.Mesh {
	var out []*kernel.Mesh
	for _, p := range parts {
		if p != nil && p.PartName == tessellate.WallsPart {
			out = append(out, p)
		}
	}
	return out
}

func toTriangle(m *kernel.Mesh, i int) stl.Triangle {
	var t stl.Triangle
	for j := 0; j < 3; j++ {
		v := m.Indices[i*3+j] * 3
		t.Vertices[j] = stl.Vec3{m.Vertices[v], m.Vertices[v+1], m.Vertices[v+2]}
	}
	if len(m.Normals) == len(m.Vertices) {
		v := m.Indices[i*3] * 3
		t.Normal = stl.Vec3{m.Normals[v], m.Normals[v+1], m.Normals[v+2]}
	}
	return t
}
