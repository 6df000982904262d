package raster

import (
	"image"
	"os"
)

var debugEnabled = os.Getenv("FLOORPLAN_LOG_LEVEL") == "debug"

// Mask is a binary image; true marks ink.
type Mask struct {
	W, H int
	Pix  []bool
}

// At reports whether (x, y) is ink. Pixels outside the mask are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.Pix[y*m.W+x]
}

// Count returns the number of ink pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// region is one connected component of a mask.
type region struct {
	ink    bool
	seed   int // raster index of the first pixel
	size   int
	id     int32
	labels []int32
	w, h   int
}

func (r *region) in(x, y int) bool {
	if x < 0 || y < 0 || x >= r.w || y >= r.h {
		return false
	}
	return r.labels[y*r.w+x] == r.id
}

var (
	neighbors8 = []image.Point{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	neighbors4 = []image.Point{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
)

// components labels the connected regions whose pixels equal value.
// Ink is 8-connected; background is 4-connected so that it never leaks
// through a diagonal ink stroke. With touchBorder false, regions that
// reach the image edge are skipped: only enclosed holes remain.
func (m *Mask) components(value, touchBorder bool) []*region {
	labels := make([]int32, len(m.Pix))
	conn := neighbors4
	if value {
		conn = neighbors8
	}

	var out []*region
	var next int32 = 1
	stack := make([]image.Point, 0, 64)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			i := y*m.W + x
			if m.Pix[i] != value || labels[i] != 0 {
				continue
			}
			id := next
			next++
			r := &region{ink: value, seed: i, id: id, labels: labels, w: m.W, h: m.H}
			border := false

			stack = append(stack[:0], image.Pt(x, y))
			labels[i] = id
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				r.size++
				if p.X == 0 || p.Y == 0 || p.X == m.W-1 || p.Y == m.H-1 {
					border = true
				}
				for _, d := range conn {
					q := p.Add(d)
					if q.X < 0 || q.Y < 0 || q.X >= m.W || q.Y >= m.H {
						continue
					}
					j := q.Y*m.W + q.X
					if m.Pix[j] == value && labels[j] == 0 {
						labels[j] = id
						stack = append(stack, q)
					}
				}
			}
			if border && !touchBorder {
				continue
			}
			out = append(out, r)
		}
	}
	return out
}

// trace follows the outer border of the region clockwise (in image
// coordinates) with Moore-neighbor tracing and Jacob's stopping
// criterion, starting from its first pixel in raster order.
func (r *region) trace() []image.Point {
	start := image.Pt(r.seed%r.w, r.seed/r.w)
	contour := []image.Point{start}
	cur := start
	back := 4 // west of the first raster pixel is outside the region

	limit := 4*r.size + 16
	for steps := 0; steps < limit; steps++ {
		found := -1
		for i := 1; i <= 8; i++ {
			d := (back + i) % 8
			p := cur.Add(neighbors8[d])
			if r.in(p.X, p.Y) {
				found = d
				break
			}
		}
		if found < 0 {
			return contour // isolated pixel
		}
		next := cur.Add(neighbors8[found])
		if cur == start && len(contour) > 1 && next == contour[1] {
			return contour[:len(contour)-1]
		}
		// The last background pixel examined becomes the backtrack point.
		prev := cur.Add(neighbors8[(found+7)%8])
		back = direction(prev.Sub(next))
		cur = next
		contour = append(contour, cur)
	}
	return contour
}

func direction(d image.Point) int {
	for i, n := range neighbors8 {
		if n == d {
			return i
		}
	}
	return 4
}
