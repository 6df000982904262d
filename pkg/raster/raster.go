// Package raster turns a floor plan image into closed outlines of its
// ink regions. The builtin Tracer binarizes with bild, traces component
// borders with Moore-neighbor tracing and simplifies them with
// Douglas-Peucker from orb. An OpenCV implementation lives in
// raster/opencv behind the gocv build tag.
package raster

import (
	"image"
	"log"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/chazu/floorplan3d/pkg/features"
	"github.com/disintegration/imaging"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// Contour is the closed border of one connected region.
type Contour struct {
	Points     []image.Point // border pixels in tracing order, not repeated at the end
	Simplified []image.Point // Douglas-Peucker reduction of Points
	Area       float64       // shoelace area of Points
	Box        features.Box
	Hole       bool // border of an enclosed background region
}

// Segmenter extracts contours from an image.
type Segmenter interface {
	Segment(img image.Image) ([]Contour, error)
}

// Options configures the builtin segmenter.
type Options struct {
	Threshold     int     // pixels with luminance <= Threshold are ink
	MedianKernel  int     // odd window size, 1 disables the filter
	SimplifyRatio float64 // tolerance as a fraction of the closed perimeter
	MinArea       float64 // contours below this area are dropped
	Holes         bool    // also trace enclosed background regions
}

// DefaultOptions matches the stock configuration.
func DefaultOptions() Options {
	return Options{
		Threshold:     127,
		MedianKernel:  3,
		SimplifyRatio: 0.01,
		MinArea:       5,
		Holes:         true,
	}
}

// Tracer is the pure Go Segmenter.
type Tracer struct {
	opts Options
}

// Compile-time interface check.
var _ Segmenter = (*Tracer)(nil)

// New returns a Tracer.
func New(opts Options) *Tracer {
	return &Tracer{opts: opts}
}

// Segment binarizes img and returns the contours of its ink regions, and
// of enclosed holes when enabled, ordered by their first pixel in raster
// order. Contours below MinArea or with fewer than three simplified
// points are dropped.
func (t *Tracer) Segment(img image.Image) ([]Contour, error) {
	mask := t.Binarize(img)
	if mask.W == 0 || mask.H == 0 {
		return nil, nil
	}

	regions := mask.components(true, true)
	if t.opts.Holes {
		regions = append(regions, mask.components(false, false)...)
		sort.Slice(regions, func(i, j int) bool { return regions[i].seed < regions[j].seed })
	}

	var out []Contour
	dropped := 0
	for _, r := range regions {
		pts := r.trace()
		c := t.contour(pts)
		c.Hole = !r.ink
		if c.Area < t.opts.MinArea || len(c.Simplified) < 3 {
			dropped++
			continue
		}
		out = append(out, c)
	}
	if debugEnabled {
		log.Printf("[raster] %d regions, %d contours kept, %d dropped", len(regions), len(out), dropped)
	}
	return out, nil
}

// Binarize converts img to an ink mask: grayscale, inverted threshold,
// then median filtering.
func (t *Tracer) Binarize(img image.Image) *Mask {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	m := &Mask{W: b.Dx(), H: b.Dy(), Pix: make([]bool, b.Dx()*b.Dy())}
	if len(m.Pix) == 0 {
		return m
	}

	// segment.Threshold marks pixels at or above the level white.
	light := segment.Threshold(gray, uint8(t.opts.Threshold+1))
	ink := image.NewGray(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if light.GrayAt(x, y).Y == 0 {
				ink.Pix[y*ink.Stride+x] = 255
			}
		}
	}

	if t.opts.MedianKernel > 1 {
		filtered := effect.Median(ink, float64(t.opts.MedianKernel/2))
		for y := 0; y < m.H; y++ {
			for x := 0; x < m.W; x++ {
				m.Pix[y*m.W+x] = filtered.Pix[y*filtered.Stride+x*4] > 127
			}
		}
		return m
	}
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			m.Pix[y*m.W+x] = ink.Pix[y*ink.Stride+x] > 127
		}
	}
	return m
}

func (t *Tracer) contour(pts []image.Point) Contour {
	c := Contour{
		Points: pts,
		Area:   Area(pts),
		Box:    features.FromRect(Bounds(pts)),
	}
	c.Simplified = Simplify(pts, t.opts.SimplifyRatio*Perimeter(pts))
	return c
}

// Area returns the unsigned shoelace area of a closed pixel polygon.
func Area(pts []image.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	return math.Abs(planar.Area(toRing(pts)))
}

// Perimeter returns the length of the closed polygon through pts.
func Perimeter(pts []image.Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	ring := toRing(pts)
	return planar.Length(orb.LineString(ring))
}

// Bounds returns the pixel rectangle covering pts, Max exclusive.
func Bounds(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	r.Max = r.Max.Add(image.Pt(1, 1))
	return r
}

// Simplify reduces a closed polygon with Douglas-Peucker at tolerance eps.
// The result is open: the first point is not repeated.
func Simplify(pts []image.Point, eps float64) []image.Point {
	if len(pts) < 3 {
		return append([]image.Point(nil), pts...)
	}
	ls := orb.LineString(toRing(pts))
	reduced, ok := simplify.DouglasPeucker(eps).Simplify(ls.Clone()).(orb.LineString)
	if !ok {
		return append([]image.Point(nil), pts...)
	}
	if len(reduced) > 1 && reduced[0].Equal(reduced[len(reduced)-1]) {
		reduced = reduced[:len(reduced)-1]
	}
	out := make([]image.Point, len(reduced))
	for i, p := range reduced {
		out[i] = image.Pt(int(math.Round(p[0])), int(math.Round(p[1])))
	}
	return out
}

// toRing closes pts into an orb ring.
func toRing(pts []image.Point) orb.Ring {
	ring := make(orb.Ring, 0, len(pts)+1)
	for _, p := range pts {
		ring = append(ring, orb.Point{float64(p.X), float64(p.Y)})
	}
	return append(ring, ring[0])
}
