package export

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/chazu/floorplan3d/pkg/classify"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// OverlayPalette colours region outlines by kind.
var OverlayPalette = map[classify.Kind]colorful.Color{
	classify.Wall:   mustHex("#e6194b"),
	classify.Door:   mustHex("#f58231"),
	classify.Window: mustHex("#4363d8"),
	classify.Stair:  mustHex("#3cb44b"),
}

// Overlay draws every region's box over img and saves the result. Wall
// regions also get their simplified polyline.
func Overlay(path string, img image.Image, regions []classify.Region) error {
	out := DrawOverlay(img, regions)
	if err := imaging.Save(out, path); err != nil {
		return &Error{Path: path, Op: "overlay", Err: err}
	}
	return nil
}

// DrawOverlay returns a copy of img with the regions drawn on it.
func DrawOverlay(img image.Image, regions []classify.Region) *image.RGBA {
	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	for _, r := range regions {
		c := color.RGBAModel.Convert(OverlayPalette[r.Kind]).(color.RGBA)
		rect := r.Box.Rect().Add(bounds.Min)
		for x := rect.Min.X; x < rect.Max.X; x++ {
			setIn(result, x, rect.Min.Y, c)
			setIn(result, x, rect.Max.Y-1, c)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			setIn(result, rect.Min.X, y, c)
			setIn(result, rect.Max.X-1, y, c)
		}
		for i := range r.Polyline {
			a := r.Polyline[i].Add(bounds.Min)
			b := r.Polyline[(i+1)%len(r.Polyline)].Add(bounds.Min)
			line(result, a, b, c)
		}
	}
	return result
}

func setIn(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// line draws a Bresenham line from a to b.
func line(img *image.RGBA, a, b image.Point, c color.RGBA) {
	dx, dy := abs(b.X-a.X), -abs(b.Y-a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	for {
		setIn(img, a.X, a.Y, c)
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
