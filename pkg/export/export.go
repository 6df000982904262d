// Package export writes the tessellated model and the debug overlay to
// disk. The model format is chosen by file extension.
package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chazu/floorplan3d/pkg/features"
	"github.com/chazu/floorplan3d/pkg/kernel"
)

// Error reports a failed write. It matches features.ErrSerialization so
// callers can treat every artifact failure alike.
type Error struct {
	Path string
	Op   string // "stl", "gltf", "glb", "overlay"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == features.ErrSerialization }

// ErrUnsupportedFormat is wrapped by Model for unknown extensions.
var ErrUnsupportedFormat = errors.New("unsupported model format")

// Extension returns the file extension for a configured format name.
func Extension(format string) string {
	return "." + strings.ToLower(format)
}

// Model writes parts to path as STL, glTF or GLB depending on the
// extension.
func Model(path string, parts []*kernel.Mesh) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".stl":
		return writeSTL(path, parts)
	case ".gltf":
		return writeGLTF(path, parts, false)
	case ".glb":
		return writeGLTF(path, parts, true)
	}
	return &Error{Path: path, Op: strings.TrimPrefix(ext, "."), Err: fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)}
}
