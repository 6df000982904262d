// Package openscad implements the kernel.Kernel boolean interface by
// shelling out to the OpenSCAD command line tool. Each subtraction writes
// a .scad scene to a scratch directory, renders it to STL and reads the
// result back.
package openscad

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/floorplan3d/pkg/kernel"
	"github.com/hschendel/stl"
)

// DefaultCommand is the executable looked up on PATH.
const DefaultCommand = "openscad"

// waitDelay bounds how long a killed render may hold its output pipes.
const waitDelay = 2 * time.Second

// Compile-time interface check.
var _ kernel.Kernel = (*Kernel)(nil)

func init() {
	kernel.Register("openscad", func(opts kernel.Options) (kernel.Kernel, error) {
		return New(opts.Command), nil
	})
}

// Kernel runs OpenSCAD as an external process.
type Kernel struct {
	command string
}

// New returns a Kernel using command, or DefaultCommand when empty.
func New(command string) *Kernel {
	if command == "" {
		command = DefaultCommand
	}
	return &Kernel{command: command}
}

func (k *Kernel) Name() string { return "openscad" }

// Probe runs `openscad --version`.
func (k *Kernel) Probe(ctx context.Context) error {
	path, err := exec.LookPath(k.command)
	if err != nil {
		return fmt.Errorf("%w: %v", kernel.ErrBooleanUnavailable, err)
	}
	cmd := exec.CommandContext(ctx, path, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s --version: %v: %s", kernel.ErrBooleanUnavailable,
			k.command, err, strings.TrimSpace(out.String()))
	}
	return nil
}

// Difference renders a - b with OpenSCAD. Cancelling ctx kills the process.
func (k *Kernel) Difference(ctx context.Context, a, b *kernel.Solid) (*kernel.Solid, error) {
	dir, err := os.MkdirTemp("", "floorplan-openscad-")
	if err != nil {
		return nil, fmt.Errorf("%w: scratch dir: %v", kernel.ErrBooleanFailed, err)
	}
	defer os.RemoveAll(dir)

	scenePath := filepath.Join(dir, "scene.scad")
	outPath := filepath.Join(dir, "result.stl")

	f, err := os.Create(scenePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kernel.ErrBooleanFailed, err)
	}
	if err := WriteDifference(f, a, b); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: write scene: %v", kernel.ErrBooleanFailed, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", kernel.ErrBooleanFailed, err)
	}

	cmd := exec.CommandContext(ctx, k.command, "-o", outPath, scenePath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", kernel.ErrBooleanFailed, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: openscad exited %d: %s", kernel.ErrBooleanFailed,
				exitErr.ExitCode(), lastLine(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %v", kernel.ErrBooleanFailed, err)
	}

	solid, err := stl.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read result: %v", kernel.ErrBooleanFailed, err)
	}
	mesh := fromSTL(solid)
	if mesh.IsEmpty() {
		return nil, fmt.Errorf("%w: openscad produced an empty mesh", kernel.ErrBooleanFailed)
	}
	return &kernel.Solid{Mesh: mesh}, nil
}

func fromSTL(s *stl.Solid) *kernel.Mesh {
	m := &kernel.Mesh{}
	for _, t := range s.Triangles {
		var v [3][3]float64
		for j := 0; j < 3; j++ {
			v[j] = [3]float64{float64(t.Vertices[j][0]), float64(t.Vertices[j][1]), float64(t.Vertices[j][2])}
		}
		m.AddTriangle(v[0], v[1], v[2])
	}
	return m
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
