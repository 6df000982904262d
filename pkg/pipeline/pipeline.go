// Package pipeline runs a floor plan image through every stage:
// segmentation, classification, wall solidification, opening
// subtraction, feature recording and export. Each image is processed
// synchronously; Batch runs independent images in parallel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/floorplan3d/pkg/classify"
	"github.com/chazu/floorplan3d/pkg/config"
	"github.com/chazu/floorplan3d/pkg/export"
	"github.com/chazu/floorplan3d/pkg/features"
	"github.com/chazu/floorplan3d/pkg/kernel"
	"github.com/chazu/floorplan3d/pkg/openings"
	"github.com/chazu/floorplan3d/pkg/raster"
	"github.com/chazu/floorplan3d/pkg/raster/opencv"
	"github.com/chazu/floorplan3d/pkg/tessellate"
	"github.com/chazu/floorplan3d/pkg/walls"

	// Boolean backends register themselves with the kernel package.
	_ "github.com/chazu/floorplan3d/pkg/kernel/manifold"
	_ "github.com/chazu/floorplan3d/pkg/kernel/openscad"
	_ "github.com/chazu/floorplan3d/pkg/kernel/sdfx"
)

var debugEnabled = os.Getenv("FLOORPLAN_LOG_LEVEL") == "debug"

// Result is everything one run produced.
type Result struct {
	Status   Status
	Contours int
	Regions  []classify.Region
	Record   features.Record
	Walls    walls.Stats
	Cut      openings.Result
	Solid    *kernel.Solid
}

// Pipeline holds the stages built from one configuration. It is safe for
// concurrent use; runs share no mutable state.
type Pipeline struct {
	cfg        *config.Config
	segmenter  raster.Segmenter
	classifier *classify.Classifier
	cutter     *openings.Cutter
}

// New validates cfg and builds every stage. The boolean kernel is
// resolved and probed here, once; an unavailable kernel is logged and
// later reported per run as degraded output, not as an error.
func New(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	seg, err := newSegmenter(cfg.Segment)
	if err != nil {
		return nil, err
	}

	c := cfg.Classify
	cls, err := classify.NewScripted(classify.Thresholds{
		WindowAspect:  c.WindowAspect,
		WindowMaxSide: c.WindowMaxSide,
		DoorMinSide:   c.DoorMinSide,
		DoorMaxSide:   c.DoorMaxSide,
		StairMinArea:  c.StairMinArea,
		StairMaxArea:  c.StairMaxArea,
		StairAspect:   c.StairAspect,
	}, c.Rules, c.RuleTimeout)
	if err != nil {
		return nil, fmt.Errorf("classification rules: %w", err)
	}

	k, err := kernel.Resolve(ctx, cfg.Kernel.Backend, kernel.Options{
		Command:   cfg.Kernel.Command,
		MeshCells: cfg.Kernel.MeshCells,
	})
	if err != nil {
		return nil, err
	}
	cutter := openings.NewCutter(k, openings.Options{
		DoorHeight:   cfg.Openings.DoorHeight,
		WindowHeight: cfg.Openings.WindowHeight,
		Timeout:      cfg.Kernel.Timeout,
	})

	return &Pipeline{cfg: cfg, segmenter: seg, classifier: cls, cutter: cutter}, nil
}

func newSegmenter(s config.Segment) (raster.Segmenter, error) {
	opts := raster.Options{
		Threshold:     s.Threshold,
		MedianKernel:  s.MedianKernel,
		SimplifyRatio: s.SimplifyRatio,
		MinArea:       s.MinArea,
		Holes:         s.Holes,
	}
	switch strings.ToLower(s.Backend) {
	case "", "builtin":
		return raster.New(opts), nil
	case "opencv":
		seg, err := opencv.New(opts)
		if err != nil {
			return nil, err
		}
		return seg, nil
	}
	return nil, fmt.Errorf("unknown segmenter %q", s.Backend)
}

// Kernel names the resolved boolean kernel.
func (p *Pipeline) Kernel() string { return p.cutter.Kernel() }

// KernelAvailable returns nil when openings can be cut.
func (p *Pipeline) KernelAvailable() error { return p.cutter.Available() }

// Config returns the configuration the pipeline was built from.
func (p *Pipeline) Config() *config.Config { return p.cfg }

// Stem is the artifact name prefix for input: its base name without the
// extension.
func Stem(input string) string {
	return strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
}

// Paths returns the artifact paths Run writes for input.
func (p *Pipeline) Paths(input, outDir string) (model, feats, overlay string) {
	return p.stemPaths(Stem(input), outDir)
}

func (p *Pipeline) stemPaths(base, outDir string) (model, feats, overlay string) {
	model = filepath.Join(outDir, base+"_model"+export.Extension(p.cfg.Export.Format))
	feats = filepath.Join(outDir, base+"_features."+strings.ToLower(p.cfg.Export.Features))
	overlay = filepath.Join(outDir, base+"_overlay.png")
	return model, feats, overlay
}

// Run processes one image and writes its artifacts into outDir. Fatal
// errors are an image that cannot be loaded, a plan without walls and a
// failed write. A boolean failure is not fatal: the uncut model is
// written and the status is marked degraded.
func (p *Pipeline) Run(ctx context.Context, input, outDir string) (*Result, error) {
	return p.run(ctx, input, outDir, Stem(input))
}

func (p *Pipeline) run(ctx context.Context, input, outDir, stem string) (*Result, error) {
	start := time.Now()
	cfg := p.cfg

	img, err := raster.Load(input, raster.LoadOptions{PDFPage: cfg.Segment.PDFPage, PDFDPI: cfg.Segment.PDFDPI})
	if err != nil {
		return nil, err
	}
	contours, err := p.segmenter.Segment(img)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", input, err)
	}
	res := &Result{Contours: len(contours)}
	res.Regions = p.classifier.All(contours)
	res.Record = classify.Record(res.Regions)

	shell, st, err := walls.Build(res.Regions, walls.Options{
		Thickness:      cfg.Walls.Thickness,
		Height:         cfg.Walls.Height,
		MinPolygonArea: cfg.Walls.MinPolygonArea,
	})
	res.Walls = st
	if err != nil {
		return res, fmt.Errorf("%s: %w", input, err)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	res.Cut = p.cutter.Cut(ctx, shell, res.Record)
	res.Solid = res.Cut.Solid

	parts, err := tessellate.Parts(res.Solid, res.Record, tessellate.Options{
		Stairs:      cfg.Export.Stairs,
		StairHeight: cfg.Walls.Height,
	})
	if err != nil {
		return res, err
	}

	modelPath, featsPath, overlayPath := p.stemPaths(stem, outDir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return res, &features.SerializationError{Path: outDir, Err: err}
	}
	if err := export.Model(modelPath, parts); err != nil {
		return res, err
	}
	if err := features.Write(featsPath, res.Record); err != nil {
		return res, err
	}
	if cfg.Export.Overlay {
		if err := export.Overlay(overlayPath, img, res.Regions); err != nil {
			return res, err
		}
	}

	res.Status = Status{
		Success:      true,
		ModelPath:    modelPath,
		FeaturesPath: featsPath,
		Message:      fmt.Sprintf("Model generated: %d wall segments; %s", st.Segments, res.Record.Summary()),
		Degraded:     res.Cut.Degraded,
	}
	if res.Cut.Degraded {
		res.Status.Message += fmt.Sprintf("; openings not cut: %v", res.Cut.Cause)
	}
	if debugEnabled {
		log.Printf("[pipeline] %s: %d contours, %d regions, %d skipped segments, %s",
			input, res.Contours, len(res.Regions), st.Skipped(), time.Since(start).Round(time.Millisecond))
	}
	return res, nil
}

// Process is Run reduced to its status record. It never returns an
// error and never panics; failures become success=false records.
func (p *Pipeline) Process(ctx context.Context, input, outDir string) Status {
	return p.process(ctx, input, outDir, Stem(input))
}

func (p *Pipeline) process(ctx context.Context, input, outDir, stem string) (st Status) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[pipeline] panic processing %s: %v", input, r)
			st = Failed(fmt.Errorf("internal error: %v", r))
		}
	}()

	res, err := p.run(ctx, input, outDir, stem)
	if err != nil {
		log.Printf("[pipeline] %s failed: %v", input, err)
		return Failed(err)
	}
	if res.Status.Degraded {
		log.Printf("[pipeline] %s: degraded: %s", input, res.Status.Message)
	}
	return res.Status
}

// Kind classifies a Run error for status consumers.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, raster.ErrImageLoad):
		return "ImageLoadError"
	case errors.Is(err, walls.ErrNoWallsDetected):
		return "NoWallsDetectedError"
	case errors.Is(err, features.ErrSerialization):
		return "SerializationError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	}
	return "Error"
}
