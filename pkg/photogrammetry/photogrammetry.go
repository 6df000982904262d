// Package photogrammetry is a placeholder for multi-photo reconstruction.
// It performs no reconstruction: Run prints the stages a real
// implementation would go through and reports a synthetic model path.
// Its record is deliberately a separate type from the floor plan
// pipeline's status.
package photogrammetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrNoImages is returned when Run is called without inputs.
var ErrNoImages = errors.New("photogrammetry: at least one image is required")

// Stages are printed in order by Run.
var Stages = []string{
	"Extracting features...",
	"Matching images...",
	"Reconstructing 3D points...",
	"Generating mesh...",
	"Texturing model...",
}

// Result is the stub's record.
type Result struct {
	Success   bool   `json:"success"`
	ModelPath string `json:"modelPath"`
	Message   string `json:"message"`
}

// ModelPath is the synthetic output location for images: the first
// image's name up to its first dot, under /models.
func ModelPath(images []string) string {
	base := filepath.Base(images[0])
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return "/models/" + base + "_model.glb"
}

// Run writes the simulated progress and the JSON record to w.
func Run(w io.Writer, images []string) (Result, error) {
	if len(images) == 0 {
		return Result{}, ErrNoImages
	}
	fmt.Fprintf(w, "Processing %d images\n", len(images))
	for _, s := range Stages {
		fmt.Fprintln(w, s)
	}
	res := Result{
		Success:   true,
		ModelPath: ModelPath(images),
		Message:   "3D model generated successfully",
	}
	if err := json.NewEncoder(w).Encode(res); err != nil {
		return res, err
	}
	return res, nil
}
