package openscad

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/chazu/floorplan3d/pkg/kernel"
)

// WriteDifference writes an OpenSCAD program computing a - b.
// Prisms become linear_extrude blocks; solids without prisms fall back to
// a polyhedron of their mesh.
func WriteDifference(w io.Writer, a, b *kernel.Solid) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "difference() {")
	writeSolid(bw, a)
	writeSolid(bw, b)
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func writeSolid(w *bufio.Writer, s *kernel.Solid) {
	fmt.Fprintln(w, "  union() {")
	switch {
	case s.IsEmpty():
	case len(s.Prisms) > 0:
		for _, p := range s.Prisms {
			writePrism(w, p)
		}
	default:
		writePolyhedron(w, s.Mesh)
	}
	fmt.Fprintln(w, "  }")
}

func writePrism(w *bufio.Writer, p kernel.Prism) {
	pts := p.Footprint
	if len(pts) > 1 && pts[0].Equal(pts[len(pts)-1]) {
		pts = pts[:len(pts)-1]
	}
	fmt.Fprintf(w, "    linear_extrude(height=%s) polygon(points=[", num(p.Height))
	for i, pt := range pts {
		if i > 0 {
			w.WriteString(",")
		}
		fmt.Fprintf(w, "[%s,%s]", num(pt[0]), num(pt[1]))
	}
	w.WriteString("]);\n")
}

// writePolyhedron emits the mesh. OpenSCAD wants faces clockwise when
// viewed from outside, the reverse of kernel.Mesh winding.
func writePolyhedron(w *bufio.Writer, m *kernel.Mesh) {
	w.WriteString("    polyhedron(points=[")
	for i := 0; i < m.VertexCount(); i++ {
		if i > 0 {
			w.WriteString(",")
		}
		fmt.Fprintf(w, "[%s,%s,%s]",
			num(float64(m.Vertices[i*3])), num(float64(m.Vertices[i*3+1])), num(float64(m.Vertices[i*3+2])))
	}
	w.WriteString("], faces=[")
	for t := 0; t < m.TriangleCount(); t++ {
		if t > 0 {
			w.WriteString(",")
		}
		fmt.Fprintf(w, "[%d,%d,%d]", m.Indices[t*3], m.Indices[t*3+2], m.Indices[t*3+1])
	}
	w.WriteString("]);\n")
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
