package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/chazu/floorplan3d/pkg/config"
	"github.com/chazu/floorplan3d/pkg/features"
	"github.com/chazu/floorplan3d/pkg/kernel"
	"github.com/chazu/floorplan3d/pkg/raster"
	"github.com/chazu/floorplan3d/pkg/walls"
)

// cutKernel pretends to cut by dropping the first wall prism.
type cutKernel struct{}

func (cutKernel) Name() string                { return "pipeline-test" }
func (cutKernel) Probe(context.Context) error { return nil }
func (cutKernel) Difference(_ context.Context, a, _ *kernel.Solid) (*kernel.Solid, error) {
	var parts []*kernel.Solid
	for _, p := range a.Prisms[1:] {
		s, err := kernel.Extrude(p.Footprint, p.Height)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return kernel.Union(parts...), nil
}

// countingKernel records how often it is checked.
type countingKernel struct {
	cutKernel
	checks *atomic.Int32
}

func (k countingKernel) Probe(context.Context) error {
	k.checks.Add(1)
	return nil
}

var kernelChecks atomic.Int32

func init() {
	kernel.Register("pipeline-test", func(kernel.Options) (kernel.Kernel, error) { return cutKernel{}, nil })
	kernel.Register("pipeline-count", func(kernel.Options) (kernel.Kernel, error) {
		return countingKernel{checks: &kernelChecks}, nil
	})
}

func canvas(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func fill(img *image.Gray, x0, y0, x1, y1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}
}

// plan draws a 200x100 rectangular outline with a 3 pixel stroke and,
// optionally, a door block just inside the top wall.
func plan(withDoor bool) *image.Gray {
	img := canvas(260, 160)
	fill(img, 30, 30, 230, 33)
	fill(img, 30, 127, 230, 130)
	fill(img, 30, 30, 33, 130)
	fill(img, 227, 30, 230, 130)
	if withDoor {
		fill(img, 100, 35, 120, 49)
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(backend string) *config.Config {
	cfg := config.Default()
	cfg.Segment.Holes = false
	cfg.Kernel.Backend = backend
	return cfg
}

func newPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	p, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestRunRectangularPlan(t *testing.T) {
	dir := t.TempDir()
	input := writePNG(t, dir, "house.png", plan(false))
	p := newPipeline(t, testConfig("none"))

	res, err := p.Run(context.Background(), input, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	st := res.Status
	if !st.Success || st.Degraded {
		t.Fatalf("Status = %+v, want success without degradation", st)
	}
	if st.ModelPath != filepath.Join(dir, "out", "house_model.stl") {
		t.Errorf("ModelPath = %q", st.ModelPath)
	}
	if _, err := os.Stat(st.ModelPath); err != nil {
		t.Errorf("model not written: %v", err)
	}

	// Footprint is about thickness x perimeter, height is the wall height.
	want := 2.0 * 2 * (199 + 99) * 50
	if got := res.Solid.Volume(); math.Abs(got-want) > 0.05*want {
		t.Errorf("Volume() = %v, want about %v", got, want)
	}
	lo, hi := res.Solid.BoundingBox()
	if lo[2] != 0 || hi[2] != 50 {
		t.Errorf("height range = %v..%v, want 0..50", lo[2], hi[2])
	}

	rec, err := features.Read(st.FeaturesPath)
	if err != nil {
		t.Fatalf("features.Read() error = %v", err)
	}
	if rec.Openings() != 0 || len(rec.Stairs) != 0 {
		t.Errorf("record = %s, want empty", rec.Summary())
	}
}

func TestRunDegradesWithoutKernel(t *testing.T) {
	dir := t.TempDir()
	input := writePNG(t, dir, "door.png", plan(true))
	cfg := testConfig("none")
	cfg.Walls.Thickness = 12 // wide enough for the door to overlap the top wall
	p := newPipeline(t, cfg)
	if !errors.Is(p.KernelAvailable(), kernel.ErrBooleanUnavailable) {
		t.Fatalf("KernelAvailable() = %v", p.KernelAvailable())
	}

	res, err := p.Run(context.Background(), input, dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Record.Doors) != 1 {
		t.Fatalf("doors = %d, want 1 (%s)", len(res.Record.Doors), res.Record.Summary())
	}
	if !res.Status.Success || !res.Status.Degraded {
		t.Fatalf("Status = %+v, want degraded success", res.Status)
	}
	if !strings.Contains(res.Status.Message, "openings not cut") {
		t.Errorf("Message = %q", res.Status.Message)
	}

	shell, _, err := walls.Build(res.Regions, walls.Options{Thickness: 12, Height: 50, MinPolygonArea: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	if res.Solid.Volume() != shell.Volume() {
		t.Errorf("degraded volume %v != uncut volume %v", res.Solid.Volume(), shell.Volume())
	}
}

func TestRunCutsWithKernel(t *testing.T) {
	dir := t.TempDir()
	input := writePNG(t, dir, "door.png", plan(true))
	cfg := testConfig("pipeline-test")
	cfg.Walls.Thickness = 12
	cfg.Export.Format = "glb"
	cfg.Export.Overlay = true
	p := newPipeline(t, cfg)

	res, err := p.Run(context.Background(), input, dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status.Degraded || res.Cut.Overlapping != 1 {
		t.Fatalf("Status = %+v, Cut = %+v", res.Status, res.Cut)
	}
	shell, _, _ := walls.Build(res.Regions, walls.Options{Thickness: 12, Height: 50, MinPolygonArea: 0.01})
	if res.Solid.Volume() >= shell.Volume() {
		t.Errorf("cut volume %v >= uncut volume %v", res.Solid.Volume(), shell.Volume())
	}
	if !strings.HasSuffix(res.Status.ModelPath, ".glb") {
		t.Errorf("ModelPath = %q", res.Status.ModelPath)
	}
	if _, err := os.Stat(filepath.Join(dir, "door_overlay.png")); err != nil {
		t.Errorf("overlay not written: %v", err)
	}
}

func TestProcessFailures(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "good.png", plan(false))
	blank := writePNG(t, dir, "blank.png", canvas(50, 50))
	notDir := filepath.Join(dir, "file")
	os.WriteFile(notDir, []byte("x"), 0644)

	tests := []struct {
		name   string
		input  string
		outDir string
		want   string
	}{
		{"missing image", filepath.Join(dir, "missing.png"), dir, "ImageLoadError"},
		{"blank image", blank, dir, "NoWallsDetectedError"},
		{"unwritable output", good, notDir, "SerializationError"},
	}
	p := newPipeline(t, testConfig("none"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := p.Process(context.Background(), tt.input, tt.outDir)
			if st.Success {
				t.Fatal("Process() succeeded")
			}
			if !strings.HasPrefix(st.Message, tt.want) {
				t.Errorf("Message = %q, want prefix %q", st.Message, tt.want)
			}
			if st.ModelPath != "" {
				t.Errorf("ModelPath = %q on failure", st.ModelPath)
			}
		})
	}
}

func TestBatchContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{
		writePNG(t, dir, "a.png", plan(false)),
		filepath.Join(dir, "missing.png"),
		writePNG(t, dir, "blank.png", canvas(40, 40)),
		writePNG(t, dir, "b.png", plan(true)),
	}
	p := newPipeline(t, testConfig("none"))

	got := p.Batch(context.Background(), inputs, filepath.Join(dir, "out"), 2)
	want := []bool{true, false, false, true}
	if len(got) != len(want) {
		t.Fatalf("Batch() = %d statuses, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Success != w {
			t.Errorf("status %d (%s) Success = %v, want %v: %s", i, inputs[i], got[i].Success, w, got[i].Message)
		}
	}
	if !strings.Contains(got[3].ModelPath, "b_model") {
		t.Errorf("statuses out of input order: %+v", got[3])
	}
}

func TestBatchDistinctStems(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"north", "south"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			t.Fatal(err)
		}
	}
	inputs := []string{
		writePNG(t, filepath.Join(dir, "north"), "plan.png", plan(false)),
		writePNG(t, filepath.Join(dir, "south"), "plan.png", plan(true)),
	}
	out := filepath.Join(dir, "out")
	p := newPipeline(t, testConfig("none"))

	got := p.Batch(context.Background(), inputs, out, 2)
	if !got[0].Success || !got[1].Success {
		t.Fatalf("Batch() = %+v", got)
	}
	if got[0].ModelPath == got[1].ModelPath || got[0].FeaturesPath == got[1].FeaturesPath {
		t.Fatalf("artifacts collide: %q, %q", got[0].ModelPath, got[1].ModelPath)
	}
	if want := filepath.Join(out, "plan_2_model.stl"); got[1].ModelPath != want {
		t.Errorf("second ModelPath = %q, want %q", got[1].ModelPath, want)
	}
	for _, st := range got {
		for _, path := range []string{st.ModelPath, st.FeaturesPath} {
			if _, err := os.Stat(path); err != nil {
				t.Errorf("artifact missing: %v", err)
			}
		}
	}
	rec, err := features.Read(got[1].FeaturesPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Doors) != 1 {
		t.Errorf("second plan doors = %d, want 1", len(rec.Doors))
	}
}

func TestStems(t *testing.T) {
	tests := []struct {
		name   string
		inputs []string
		want   []string
	}{
		{"unique", []string{"/a/x.png", "/b/y.png"}, []string{"x", "y"}},
		{"same base", []string{"/a/plan.png", "/b/plan.png", "/c/plan.jpg"}, []string{"plan", "plan_2", "plan_3"}},
		{"suffix already used", []string{"/a/plan.png", "/b/plan.png", "/c/plan_2.png"}, []string{"plan", "plan_3", "plan_2"}},
		{"empty", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stems(tt.inputs)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Stems() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBatchCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newPipeline(t, testConfig("none"))
	got := p.Batch(ctx, []string{writePNG(t, dir, "a.png", plan(false))}, dir, 0)
	if got[0].Success || !strings.HasPrefix(got[0].Message, "Cancelled") {
		t.Errorf("status = %+v, want cancelled", got[0])
	}
}

func TestNewChecksKernelOnce(t *testing.T) {
	kernelChecks.Store(0)
	p := newPipeline(t, testConfig("pipeline-count"))
	if n := kernelChecks.Load(); n != 1 {
		t.Errorf("kernel checked %d times, want 1", n)
	}
	if p.KernelAvailable() != nil {
		t.Errorf("KernelAvailable() = %v", p.KernelAvailable())
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"invalid config", func(c *config.Config) { c.Walls.Height = 0 }},
		{"unknown kernel", func(c *config.Config) { c.Kernel.Backend = "cgal" }},
		{"bad rule", func(c *config.Config) { c.Classify.Rules = map[string]string{"door": "(< w"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			if _, err := New(context.Background(), cfg); err == nil {
				t.Error("New() error = nil")
			}
		})
	}
}

func TestNewDefaultsAndPaths(t *testing.T) {
	p := newPipeline(t, nil)
	if p.Config().Walls.Height != 50 {
		t.Errorf("default config not used: %+v", p.Config().Walls)
	}
	model, feats, overlay := p.Paths("/in/plan.v2.png", "/out")
	if model != "/out/plan.v2_model.stl" || feats != "/out/plan.v2_features.json" || overlay != "/out/plan.v2_overlay.png" {
		t.Errorf("Paths() = %q, %q, %q", model, feats, overlay)
	}
}

func TestStatusJSON(t *testing.T) {
	var buf bytes.Buffer
	st := Status{Success: true, ModelPath: "/m.glb", FeaturesPath: "/f.json", Message: "ok", Degraded: true}
	if err := st.Write(&buf); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"success", "modelPath", "featuresPath", "message", "degraded"} {
		if _, ok := got[k]; !ok {
			t.Errorf("missing field %q in %s", k, buf.String())
		}
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("status should end with a newline")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&raster.ImageLoadError{Path: "x", Err: os.ErrNotExist}, "ImageLoadError"},
		{walls.ErrNoWallsDetected, "NoWallsDetectedError"},
		{&features.SerializationError{Path: "x", Err: os.ErrPermission}, "SerializationError"},
		{context.Canceled, "Cancelled"},
		{errors.New("other"), "Error"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if st := Failed(nil); st.Success || st.Message == "" {
		t.Errorf("Failed(nil) = %+v", st)
	}
}
