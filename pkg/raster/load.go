package raster

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WEBP format decoder
)

// ErrImageLoad is matched by every *ImageLoadError.
var ErrImageLoad = errors.New("image load failed")

// ImageLoadError reports an input that is missing or cannot be decoded.
type ImageLoadError struct {
	Path string
	Err  error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("load image %s: %v", e.Path, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

func (e *ImageLoadError) Is(target error) bool { return target == ErrImageLoad }

// LoadOptions controls how vector inputs are rasterized.
type LoadOptions struct {
	PDFPage int     // 0-based page to render
	PDFDPI  float64 // render resolution
}

// Load decodes a raster image, applying EXIF orientation. PDF files are
// rendered at the configured page and resolution.
func Load(path string, opts LoadOptions) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &ImageLoadError{Path: path, Err: err}
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return loadPDF(path, opts)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ImageLoadError{Path: path, Err: err}
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, &ImageLoadError{Path: path, Err: errors.New("image has no pixels")}
	}
	return img, nil
}

func loadPDF(path string, opts LoadOptions) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, &ImageLoadError{Path: path, Err: err}
	}
	defer doc.Close()

	if opts.PDFPage < 0 || opts.PDFPage >= doc.NumPage() {
		return nil, &ImageLoadError{Path: path,
			Err: fmt.Errorf("page %d out of range (document has %d)", opts.PDFPage, doc.NumPage())}
	}
	dpi := opts.PDFDPI
	if dpi <= 0 {
		dpi = 150
	}
	img, err := doc.ImageDPI(opts.PDFPage, dpi)
	if err != nil {
		return nil, &ImageLoadError{Path: path, Err: err}
	}
	return img, nil
}

var extensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true, ".pdf": true,
}

// Supported reports whether Load can decode path, judging by its
// extension.
func Supported(path string) bool {
	return extensions[strings.ToLower(filepath.Ext(path))]
}
