package config

import (
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestDefaultValues(t *testing.T) {
	c := Default()
	if c.Segment.Threshold != 127 || c.Segment.MedianKernel != 3 {
		t.Errorf("segment defaults = %+v", c.Segment)
	}
	if c.Walls.Thickness != 2 || c.Walls.Height != 50 || c.Walls.MinPolygonArea != 0.01 {
		t.Errorf("wall defaults = %+v", c.Walls)
	}
	if c.Openings.DoorHeight != 40 || c.Openings.WindowHeight != 30 {
		t.Errorf("opening defaults = %+v", c.Openings)
	}
	if c.Kernel.Timeout != 60*time.Second {
		t.Errorf("kernel timeout = %v, want 60s", c.Kernel.Timeout)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	want := Default()
	want.Walls.Height = 80
	want.Kernel.Backend = "sdfx"
	want.Kernel.Timeout = 90 * time.Second
	want.Classify.Rules = map[string]string{"window": "(> aspect 4)"}

	path := filepath.Join(t.TempDir(), "floorplan.yaml")
	if err := want.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v\nwant %+v", got, want)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floorplan.yaml")
	data := "walls:\n  height: 120\nkernel:\n  timeout: 5s\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Walls.Height != 120 {
		t.Errorf("Walls.Height = %v, want 120", c.Walls.Height)
	}
	if c.Walls.Thickness != 2 {
		t.Errorf("Walls.Thickness = %v, want default 2", c.Walls.Thickness)
	}
	if c.Kernel.Timeout != 5*time.Second {
		t.Errorf("Kernel.Timeout = %v, want 5s", c.Kernel.Timeout)
	}
	if !c.Segment.Holes {
		t.Error("Segment.Holes lost its default")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("walls: [unclosed"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("Load(bad yaml) error = nil")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FLOORPLAN_WALL_HEIGHT", "75.5")
	t.Setenv("FLOORPLAN_KERNEL", "none")
	t.Setenv("FLOORPLAN_BOOLEAN_TIMEOUT", "2m")
	t.Setenv("FLOORPLAN_THRESHOLD", "not-a-number")

	c := Default()
	c.ApplyEnv()

	if c.Walls.Height != 75.5 {
		t.Errorf("Walls.Height = %v, want 75.5", c.Walls.Height)
	}
	if c.Kernel.Backend != "none" {
		t.Errorf("Kernel.Backend = %q, want none", c.Kernel.Backend)
	}
	if c.Kernel.Timeout != 2*time.Minute {
		t.Errorf("Kernel.Timeout = %v, want 2m", c.Kernel.Timeout)
	}
	if c.Segment.Threshold != 127 {
		t.Errorf("Segment.Threshold = %d, want 127 kept on malformed env", c.Segment.Threshold)
	}
}

func TestFlagsOverride(t *testing.T) {
	c := Default()
	c.Walls.Height = 60 // as if from file

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse([]string{"-door-height", "35", "-format", "glb"}); err != nil {
		t.Fatal(err)
	}
	if c.Openings.DoorHeight != 35 {
		t.Errorf("DoorHeight = %v, want 35", c.Openings.DoorHeight)
	}
	if c.Export.Format != "glb" {
		t.Errorf("Format = %q, want glb", c.Export.Format)
	}
	if c.Walls.Height != 60 {
		t.Errorf("Walls.Height = %v, want file value 60 kept", c.Walls.Height)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"zero thickness", func(c *Config) { c.Walls.Thickness = 0 }, "walls.thickness"},
		{"negative height", func(c *Config) { c.Walls.Height = -1 }, "walls.height"},
		{"even median", func(c *Config) { c.Segment.MedianKernel = 4 }, "median_kernel"},
		{"threshold 255", func(c *Config) { c.Segment.Threshold = 255 }, "threshold"},
		{"zero door", func(c *Config) { c.Openings.DoorHeight = 0 }, "door_height"},
		{"bad format", func(c *Config) { c.Export.Format = "obj" }, "export.format"},
		{"bad segmenter", func(c *Config) { c.Segment.Backend = "magic" }, "segment.backend"},
		{"unknown rule", func(c *Config) { c.Classify.Rules = map[string]string{"wall": "true"} }, "unknown rule"},
		{"zero timeout", func(c *Config) { c.Kernel.Timeout = 0 }, "kernel.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
