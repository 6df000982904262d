package kernel

import "math"

// Mesh is a triangle mesh suitable for rendering and export.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	PartName string    `json:"partName"` // walls, stair-0, ...
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Triangle returns the three corners of triangle i.
func (m *Mesh) Triangle(i int) [3][3]float64 {
	var t [3][3]float64
	for j := 0; j < 3; j++ {
		v := m.Indices[i*3+j]
		t[j] = [3]float64{
			float64(m.Vertices[v*3]),
			float64(m.Vertices[v*3+1]),
			float64(m.Vertices[v*3+2]),
		}
	}
	return t
}

// Volume returns the enclosed volume using the divergence theorem.
// The mesh must be closed; orientation only affects the sign, which is
// dropped.
func (m *Mesh) Volume() float64 {
	var sum float64
	for i := 0; i < m.TriangleCount(); i++ {
		t := m.Triangle(i)
		a, b, c := t[0], t[1], t[2]
		// a . (b x c)
		sum += a[0]*(b[1]*c[2]-b[2]*c[1]) +
			a[1]*(b[2]*c[0]-b[0]*c[2]) +
			a[2]*(b[0]*c[1]-b[1]*c[0])
	}
	return math.Abs(sum) / 6
}

// Bounds returns the axis-aligned bounding box. An empty mesh returns
// zero vectors.
func (m *Mesh) Bounds() (min, max [3]float64) {
	if m.IsEmpty() {
		return min, max
	}
	for k := 0; k < 3; k++ {
		min[k] = math.Inf(1)
		max[k] = math.Inf(-1)
	}
	for i := 0; i < m.VertexCount(); i++ {
		for k := 0; k < 3; k++ {
			v := float64(m.Vertices[i*3+k])
			min[k] = math.Min(min[k], v)
			max[k] = math.Max(max[k], v)
		}
	}
	return min, max
}

// Append copies o's triangles onto m, offsetting indices.
func (m *Mesh) Append(o *Mesh) {
	if o == nil {
		return
	}
	base := uint32(m.VertexCount())
	m.Vertices = append(m.Vertices, o.Vertices...)
	m.Normals = append(m.Normals, o.Normals...)
	for _, idx := range o.Indices {
		m.Indices = append(m.Indices, idx+base)
	}
}

// AddTriangle appends a flat-shaded triangle with its own three vertices.
func (m *Mesh) AddTriangle(a, b, c [3]float64) {
	n := faceNormal(a, b, c)
	base := uint32(m.VertexCount())
	for _, v := range [][3]float64{a, b, c} {
		m.Vertices = append(m.Vertices, float32(v[0]), float32(v[1]), float32(v[2]))
		m.Normals = append(m.Normals, float32(n[0]), float32(n[1]), float32(n[2]))
	}
	m.Indices = append(m.Indices, base, base+1, base+2)
}

func faceNormal(a, b, c [3]float64) [3]float64 {
	e1 := [3]float64{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	e2 := [3]float64{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
	n := [3]float64{
		e1[1]*e2[2] - e1[2]*e2[1],
		e1[2]*e2[0] - e1[0]*e2[2],
		e1[0]*e2[1] - e1[1]*e2[0],
	}
	l := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
	if l < 1e-12 {
		return [3]float64{}
	}
	return [3]float64{n[0] / l, n[1] / l, n[2] / l}
}

// SmoothNormals generates per-vertex normals by averaging the face normals
// of all triangles incident on each vertex. Used for backends whose meshes
// share vertices and carry no normals.
func SmoothNormals(vertices []float32, indices []uint32) []float32 {
	numVerts := len(vertices) / 3
	acc := make([]float64, numVerts*3)

	for t := 0; t+2 < len(indices); t += 3 {
		var p [3][3]float64
		for j := 0; j < 3; j++ {
			v := indices[t+j]
			p[j] = [3]float64{float64(vertices[v*3]), float64(vertices[v*3+1]), float64(vertices[v*3+2])}
		}
		e1 := [3]float64{p[1][0] - p[0][0], p[1][1] - p[0][1], p[1][2] - p[0][2]}
		e2 := [3]float64{p[2][0] - p[0][0], p[2][1] - p[0][1], p[2][2] - p[0][2]}
		n := [3]float64{
			e1[1]*e2[2] - e1[2]*e2[1],
			e1[2]*e2[0] - e1[0]*e2[2],
			e1[0]*e2[1] - e1[1]*e2[0],
		}
		for j := 0; j < 3; j++ {
			v := indices[t+j]
			acc[v*3] += n[0]
			acc[v*3+1] += n[1]
			acc[v*3+2] += n[2]
		}
	}

	normals := make([]float32, numVerts*3)
	for i := 0; i < numVerts; i++ {
		x, y, z := acc[i*3], acc[i*3+1], acc[i*3+2]
		l := math.Sqrt(x*x + y*y + z*z)
		if l > 1e-12 {
			normals[i*3] = float32(x / l)
			normals[i*3+1] = float32(y / l)
			normals[i*3+2] = float32(z / l)
		}
	}
	return normals
}
