// Package config holds every tunable of the floor plan pipeline. Values
// come from Default, then an optional YAML file, then FLOORPLAN_*
// environment variables, then command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ============================================================
// Configuration
// ============================================================

type Config struct {
	Segment  Segment  `yaml:"segment"`
	Classify Classify `yaml:"classify"`
	Walls    Walls    `yaml:"walls"`
	Openings Openings `yaml:"openings"`
	Kernel   Kernel   `yaml:"kernel"`
	Export   Export   `yaml:"export"`
}

type Segment struct {
	Backend       string  `yaml:"backend"` // builtin or opencv
	Threshold     int     `yaml:"threshold"`
	MedianKernel  int     `yaml:"median_kernel"`
	SimplifyRatio float64 `yaml:"simplify_ratio"`
	MinArea       float64 `yaml:"min_area"`
	Holes         bool    `yaml:"holes"`
	PDFPage       int     `yaml:"pdf_page"`
	PDFDPI        float64 `yaml:"pdf_dpi"`
}

type Classify struct {
	WindowAspect  float64 `yaml:"window_aspect"`
	WindowMaxSide float64 `yaml:"window_max_side"`
	DoorMinSide   float64 `yaml:"door_min_side"`
	DoorMaxSide   float64 `yaml:"door_max_side"`
	StairMinArea  float64 `yaml:"stair_min_area"`
	StairMaxArea  float64 `yaml:"stair_max_area"`
	StairAspect   float64 `yaml:"stair_aspect"`

	// Rules overrides the window, door or stair predicate with a Lisp
	// expression, e.g. window: (and (> aspect 3) (< min-side 15)).
	Rules       map[string]string `yaml:"rules,omitempty"`
	RuleTimeout time.Duration     `yaml:"rule_timeout"`
}

type Walls struct {
	Thickness      float64 `yaml:"thickness"`
	Height         float64 `yaml:"height"`
	MinPolygonArea float64 `yaml:"min_polygon_area"`
}

type Openings struct {
	DoorHeight   float64 `yaml:"door_height"`
	WindowHeight float64 `yaml:"window_height"`
}

type Kernel struct {
	Backend   string        `yaml:"backend"` // openscad, sdfx, manifold, none
	Command   string        `yaml:"command"`
	Timeout   time.Duration `yaml:"timeout"`
	MeshCells int           `yaml:"mesh_cells"`
}

type Export struct {
	Format   string `yaml:"format"`   // stl, gltf, glb
	Features string `yaml:"features"` // json, yaml
	Overlay  bool   `yaml:"overlay"`
	Stairs   bool   `yaml:"stairs"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Segment: Segment{
			Backend:       "builtin",
			Threshold:     127,
			MedianKernel:  3,
			SimplifyRatio: 0.01,
			MinArea:       5,
			Holes:         true,
			PDFPage:       0,
			PDFDPI:        150,
		},
		Classify: Classify{
			WindowAspect:  3,
			WindowMaxSide: 15,
			DoorMinSide:   10,
			DoorMaxSide:   50,
			StairMinArea:  50,
			StairMaxArea:  2000,
			StairAspect:   1.2,
			RuleTimeout:   time.Second,
		},
		Walls: Walls{
			Thickness:      2,
			Height:         50,
			MinPolygonArea: 0.01,
		},
		Openings: Openings{
			DoorHeight:   40,
			WindowHeight: 30,
		},
		Kernel: Kernel{
			Backend:   "openscad",
			Command:   "openscad",
			Timeout:   60 * time.Second,
			MeshCells: 200,
		},
		Export: Export{
			Format:   "stl",
			Features: "json",
			Overlay:  false,
			Stairs:   true,
		},
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file
// keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides fields from FLOORPLAN_* environment variables.
// Malformed values are logged and ignored.
func (c *Config) ApplyEnv() {
	c.Segment.Backend = getEnv("FLOORPLAN_SEGMENTER", c.Segment.Backend)
	c.Segment.Threshold = getEnvAsInt("FLOORPLAN_THRESHOLD", c.Segment.Threshold)
	c.Segment.MedianKernel = getEnvAsInt("FLOORPLAN_MEDIAN_KERNEL", c.Segment.MedianKernel)
	c.Walls.Thickness = getEnvAsFloat("FLOORPLAN_WALL_THICKNESS", c.Walls.Thickness)
	c.Walls.Height = getEnvAsFloat("FLOORPLAN_WALL_HEIGHT", c.Walls.Height)
	c.Openings.DoorHeight = getEnvAsFloat("FLOORPLAN_DOOR_HEIGHT", c.Openings.DoorHeight)
	c.Openings.WindowHeight = getEnvAsFloat("FLOORPLAN_WINDOW_HEIGHT", c.Openings.WindowHeight)
	c.Kernel.Backend = getEnv("FLOORPLAN_KERNEL", c.Kernel.Backend)
	c.Kernel.Command = getEnv("FLOORPLAN_OPENSCAD", c.Kernel.Command)
	c.Kernel.Timeout = getEnvAsDuration("FLOORPLAN_BOOLEAN_TIMEOUT", c.Kernel.Timeout)
	c.Export.Format = getEnv("FLOORPLAN_FORMAT", c.Export.Format)
}

// RegisterFlags binds command line flags to the configuration. Flag
// defaults are the current values, so parsing after Load and ApplyEnv
// gives flags the last word.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Segment.Backend, "segmenter", c.Segment.Backend, "Segmenter: builtin, opencv")
	fs.IntVar(&c.Segment.Threshold, "threshold", c.Segment.Threshold, "Binarization threshold (0-254); darker pixels are ink")
	fs.IntVar(&c.Segment.MedianKernel, "median", c.Segment.MedianKernel, "Median filter kernel size (odd, 1 disables)")
	fs.Float64Var(&c.Segment.SimplifyRatio, "simplify", c.Segment.SimplifyRatio, "Polyline simplification tolerance as a fraction of perimeter")
	fs.Float64Var(&c.Segment.MinArea, "min-area", c.Segment.MinArea, "Discard contours smaller than this many square pixels")
	fs.IntVar(&c.Segment.PDFPage, "pdf-page", c.Segment.PDFPage, "Page to render for PDF input (0-based)")
	fs.Float64Var(&c.Segment.PDFDPI, "pdf-dpi", c.Segment.PDFDPI, "Render resolution for PDF input")
	fs.Float64Var(&c.Walls.Thickness, "wall-thickness", c.Walls.Thickness, "Wall thickness")
	fs.Float64Var(&c.Walls.Height, "wall-height", c.Walls.Height, "Wall height")
	fs.Float64Var(&c.Openings.DoorHeight, "door-height", c.Openings.DoorHeight, "Door opening height")
	fs.Float64Var(&c.Openings.WindowHeight, "window-height", c.Openings.WindowHeight, "Window opening height")
	fs.StringVar(&c.Kernel.Backend, "kernel", c.Kernel.Backend, "Boolean kernel: openscad, sdfx, manifold, none")
	fs.StringVar(&c.Kernel.Command, "openscad", c.Kernel.Command, "OpenSCAD executable")
	fs.DurationVar(&c.Kernel.Timeout, "boolean-timeout", c.Kernel.Timeout, "Time limit for opening subtraction")
	fs.StringVar(&c.Export.Format, "format", c.Export.Format, "Model format: stl, gltf, glb")
	fs.StringVar(&c.Export.Features, "features", c.Export.Features, "Feature record format: json, yaml")
	fs.BoolVar(&c.Export.Overlay, "overlay", c.Export.Overlay, "Also write a PNG overlay of detected regions")
	fs.BoolVar(&c.Export.Stairs, "stairs", c.Export.Stairs, "Include stair blocks in glTF output")
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Segment.Backend == "builtin" || c.Segment.Backend == "opencv",
		"segment.backend must be builtin or opencv, got %q", c.Segment.Backend)
	check(c.Segment.Threshold >= 0 && c.Segment.Threshold < 255,
		"segment.threshold must be in [0, 254], got %d", c.Segment.Threshold)
	check(c.Segment.MedianKernel >= 1 && c.Segment.MedianKernel%2 == 1,
		"segment.median_kernel must be a positive odd number, got %d", c.Segment.MedianKernel)
	check(c.Segment.SimplifyRatio >= 0 && c.Segment.SimplifyRatio < 1,
		"segment.simplify_ratio must be in [0, 1), got %v", c.Segment.SimplifyRatio)
	check(c.Segment.MinArea >= 0, "segment.min_area must not be negative, got %v", c.Segment.MinArea)
	check(c.Segment.PDFPage >= 0, "segment.pdf_page must not be negative, got %d", c.Segment.PDFPage)
	check(c.Segment.PDFDPI > 0, "segment.pdf_dpi must be positive, got %v", c.Segment.PDFDPI)

	check(c.Walls.Thickness > 0, "walls.thickness must be positive, got %v", c.Walls.Thickness)
	check(c.Walls.Height > 0, "walls.height must be positive, got %v", c.Walls.Height)
	check(c.Walls.MinPolygonArea >= 0, "walls.min_polygon_area must not be negative, got %v", c.Walls.MinPolygonArea)
	check(c.Openings.DoorHeight > 0, "openings.door_height must be positive, got %v", c.Openings.DoorHeight)
	check(c.Openings.WindowHeight > 0, "openings.window_height must be positive, got %v", c.Openings.WindowHeight)

	check(c.Kernel.Timeout > 0, "kernel.timeout must be positive, got %v", c.Kernel.Timeout)
	check(c.Classify.RuleTimeout > 0, "classify.rule_timeout must be positive, got %v", c.Classify.RuleTimeout)
	for name := range c.Classify.Rules {
		check(name == "window" || name == "door" || name == "stair",
			"classify.rules: unknown rule %q (want window, door or stair)", name)
	}

	switch strings.ToLower(c.Export.Format) {
	case "stl", "gltf", "glb":
	default:
		check(false, "export.format must be stl, gltf or glb, got %q", c.Export.Format)
	}
	switch strings.ToLower(c.Export.Features) {
	case "json", "yaml":
	default:
		check(false, "export.features must be json or yaml, got %q", c.Export.Features)
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("[config] ignoring %s=%q: not an integer", key, value)
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("[config] ignoring %s=%q: not a number", key, value)
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("[config] ignoring %s=%q: not a duration", key, value)
	}
	return defaultVal
}
