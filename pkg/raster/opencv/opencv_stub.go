//go:build !gocv

// Package opencv implements raster.Segmenter with OpenCV through gocv.
// Without the "gocv" build tag this stub is compiled and New reports
// ErrUnavailable.
//
// Build with: go build -tags=gocv
package opencv

import (
	"errors"
	"image"

	"github.com/chazu/floorplan3d/pkg/raster"
)

// ErrUnavailable is returned when the binary was built without OpenCV.
var ErrUnavailable = errors.New("opencv segmenter not available: build with -tags=gocv")

// Compile-time interface check.
var _ raster.Segmenter = (*Segmenter)(nil)

// Segmenter is not constructible without the gocv tag.
type Segmenter struct{}

// New returns ErrUnavailable.
func New(raster.Options) (*Segmenter, error) {
	return nil, ErrUnavailable
}

// Segment returns ErrUnavailable.
func (s *Segmenter) Segment(image.Image) ([]raster.Contour, error) {
	return nil, ErrUnavailable
}
