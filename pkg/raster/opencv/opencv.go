//go:build gocv

// Package opencv implements raster.Segmenter with OpenCV through gocv.
// It follows the same steps as the builtin tracer: inverted binary
// threshold, median blur, contour extraction and polygon approximation.
//
// Build with: go build -tags=gocv
package opencv

import (
	"fmt"
	"image"

	"github.com/chazu/floorplan3d/pkg/features"
	"github.com/chazu/floorplan3d/pkg/raster"
	"gocv.io/x/gocv"
)

// Compile-time interface check.
var _ raster.Segmenter = (*Segmenter)(nil)

// Segmenter is the OpenCV backed raster.Segmenter.
type Segmenter struct {
	opts raster.Options
}

// New returns an OpenCV segmenter.
func New(opts raster.Options) (*Segmenter, error) {
	return &Segmenter{opts: opts}, nil
}

// Segment lists every contour (holes included when enabled) of the ink
// in img.
func (s *Segmenter) Segment(img image.Image) ([]raster.Contour, error) {
	gray, err := toGray(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, float32(s.opts.Threshold), 255, gocv.ThresholdBinaryInv)

	if s.opts.MedianKernel > 1 {
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.MedianBlur(binary, &blurred, s.opts.MedianKernel)
		binary, blurred = blurred, binary
	}

	mode := gocv.RetrievalList
	if !s.opts.Holes {
		mode = gocv.RetrievalExternal
	}
	contours := gocv.FindContours(binary, mode, gocv.ChainApproxSimple)
	defer contours.Close()

	var out []raster.Contour
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < s.opts.MinArea {
			continue
		}
		eps := s.opts.SimplifyRatio * gocv.ArcLength(contour, true)
		approx := gocv.ApproxPolyDP(contour, eps, true)
		simplified := approx.ToPoints()
		approx.Close()
		if len(simplified) < 3 {
			continue
		}
		out = append(out, raster.Contour{
			Points:     contour.ToPoints(),
			Simplified: simplified,
			Area:       area,
			Box:        features.FromRect(gocv.BoundingRect(contour)),
		})
	}
	return out, nil
}

func toGray(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	mat, err := gocv.ImageGrayToMatGray(g)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("opencv: convert image: %w", err)
	}
	return mat, nil
}
