//go:build manifold

package manifold

import (
	"context"
	"math"
	"testing"

	"github.com/chazu/floorplan3d/pkg/kernel"
	"github.com/paulmach/orb"
)

func mustNew(t *testing.T) kernel.Kernel {
	t.Helper()
	k, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return k
}

func rect(x0, y0, x1, y1 float64) orb.Ring {
	return orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}
}

func TestDifference(t *testing.T) {
	k := mustNew(t)
	wall, _ := kernel.Extrude(rect(0, 0, 100, 4), 50)
	door, _ := kernel.Extrude(rect(40, -2, 60, 6), 40)

	got, err := k.Difference(context.Background(), wall, door)
	if err != nil {
		t.Fatalf("Difference() error = %v", err)
	}
	want := 100.0*4*50 - 20.0*4*40
	if v := got.Volume(); math.Abs(v-want) > 1e-3 {
		t.Errorf("Volume() = %f, want %f", v, want)
	}

	min, max := got.BoundingBox()
	wantMin := [3]float64{0, 0, 0}
	wantMax := [3]float64{100, 4, 50}
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-wantMin[i]) > 1e-4 {
			t.Errorf("min[%d] = %f, want %f", i, min[i], wantMin[i])
		}
		if math.Abs(max[i]-wantMax[i]) > 1e-4 {
			t.Errorf("max[%d] = %f, want %f", i, max[i], wantMax[i])
		}
	}
	if len(got.Mesh.Normals) != len(got.Mesh.Vertices) {
		t.Errorf("normals length = %d, vertices length = %d, want equal",
			len(got.Mesh.Normals), len(got.Mesh.Vertices))
	}
}

func TestDifferenceClockwiseFootprint(t *testing.T) {
	k := mustNew(t)
	cw := orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	wall, _ := kernel.Extrude(cw, 10)
	hole, _ := kernel.Extrude(rect(2, 2, 4, 4), 20)

	got, err := k.Difference(context.Background(), wall, hole)
	if err != nil {
		t.Fatalf("Difference() error = %v", err)
	}
	if v := got.Volume(); math.Abs(v-960) > 1e-3 {
		t.Errorf("Volume() = %f, want 960", v)
	}
}
