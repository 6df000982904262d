// Package openings cuts door and window openings out of the wall shell.
// Each opening box is extruded to its configured height and the union of
// all openings that touch a wall is subtracted through a boolean kernel.
// When the kernel is missing, fails or runs out of time the uncut shell
// is returned and the result is marked degraded.
package openings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chazu/floorplan3d/pkg/features"
	"github.com/chazu/floorplan3d/pkg/kernel"
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// Options controls opening geometry and the boolean time budget.
type Options struct {
	DoorHeight   float64
	WindowHeight float64
	Timeout      time.Duration
}

// DefaultOptions returns 40 high doors, 30 high windows and a one minute
// boolean budget.
func DefaultOptions() Options {
	return Options{DoorHeight: 40, WindowHeight: 30, Timeout: 60 * time.Second}
}

// Result is the outcome of Cut. Solid is never nil when the shell was
// not nil.
type Result struct {
	Solid       *kernel.Solid
	Degraded    bool
	Cause       error // why the cut was skipped; wraps a kernel sentinel
	Openings    int   // door and window boxes considered
	Overlapping int   // boxes that touch a wall and were sent to the kernel
}

// Cutter subtracts openings with one resolved kernel.
type Cutter struct {
	k           kernel.Kernel
	opts        Options
	unavailable error
}

// NewCutter wraps a kernel returned by kernel.Resolve, which has already
// checked it. A nil kernel or a *kernel.Unavailable does not stop the
// Cutter; every Cut with overlapping openings then degrades with its
// cause.
func NewCutter(k kernel.Kernel, opts Options) *Cutter {
	c := &Cutter{k: k, opts: opts}
	switch u := k.(type) {
	case nil:
		c.unavailable = fmt.Errorf("no boolean kernel configured: %w", kernel.ErrBooleanUnavailable)
	case *kernel.Unavailable:
		c.unavailable = u.Err()
		log.Printf("[openings] kernel %s unavailable, openings will not be cut: %v", u.Name(), c.unavailable)
	}
	return c
}

// Available returns nil when openings can be cut.
func (c *Cutter) Available() error { return c.unavailable }

// Kernel returns the name of the configured kernel, or "none".
func (c *Cutter) Kernel() string {
	if c.k == nil {
		return "none"
	}
	return c.k.Name()
}

// Cut subtracts the doors and windows of rec from shell.
func (c *Cutter) Cut(ctx context.Context, shell *kernel.Solid, rec features.Record) Result {
	res := Result{Solid: shell, Openings: rec.Openings()}
	if shell.IsEmpty() || res.Openings == 0 {
		return res
	}

	idx := newWallIndex(shell)
	var cutters []*kernel.Solid
	add := func(boxes []features.Box, height float64) {
		for _, b := range boxes {
			if b.Empty() || !idx.overlaps(b) {
				continue
			}
			s, err := kernel.Extrude(Footprint(b), height)
			if err != nil {
				continue
			}
			cutters = append(cutters, s)
		}
	}
	add(rec.Doors, c.opts.DoorHeight)
	add(rec.Windows, c.opts.WindowHeight)
	res.Overlapping = len(cutters)
	if res.Overlapping == 0 {
		return res
	}

	if c.unavailable != nil {
		return degrade(res, c.unavailable)
	}

	cut, err := c.difference(ctx, shell, kernel.Union(cutters...))
	if err != nil {
		return degrade(res, err)
	}
	res.Solid = cut
	return res
}

func degrade(res Result, cause error) Result {
	log.Printf("[openings] keeping uncut walls (%d openings): %v", res.Overlapping, cause)
	res.Degraded = true
	res.Cause = cause
	return res
}

type diffResult struct {
	solid *kernel.Solid
	err   error
}

// difference runs the kernel under the configured timeout. The kernel is
// handed a deadline context, and the wait gives up on its own in case the
// backend ignores it.
func (c *Cutter) difference(ctx context.Context, a, b *kernel.Solid) (*kernel.Solid, error) {
	limit := c.opts.Timeout
	if limit <= 0 {
		limit = DefaultOptions().Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ch := make(chan diffResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- diffResult{err: fmt.Errorf("%w: panic in %s: %v", kernel.ErrBooleanFailed, c.k.Name(), r)}
			}
		}()
		s, err := c.k.Difference(ctx, a, b)
		ch <- diffResult{solid: s, err: err}
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			if !errors.Is(res.err, kernel.ErrBooleanFailed) && !errors.Is(res.err, kernel.ErrBooleanUnavailable) {
				res.err = fmt.Errorf("%w: %v", kernel.ErrBooleanFailed, res.err)
			}
			return nil, res.err
		}
		if res.solid.IsEmpty() {
			return nil, fmt.Errorf("%w: %s returned an empty mesh", kernel.ErrBooleanFailed, c.k.Name())
		}
		return res.solid, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s timed out after %s", kernel.ErrBooleanFailed, c.k.Name(), limit)
	}
}

// Footprint returns the axis-aligned ring covering b.
func Footprint(b features.Box) orb.Ring {
	x0, y0 := float64(b.X), float64(b.Y)
	x1, y1 := x0+float64(b.W), y0+float64(b.H)
	return orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}
}

// wallIndex answers whether an opening box touches any wall prism.
type wallIndex struct {
	tree *rtreego.Rtree
}

// wallSpatial is a wall prism's plan bounds in the R-tree.
type wallSpatial struct {
	rect rtreego.Rect
}

// Bounds implements the rtreego.Spatial interface.
func (w *wallSpatial) Bounds() rtreego.Rect { return w.rect }

func newWallIndex(shell *kernel.Solid) *wallIndex {
	idx := &wallIndex{tree: rtreego.NewTree(2, 25, 50)}
	if shell.Prisms == nil {
		lo, hi := shell.BoundingBox()
		idx.insert(orb.Bound{Min: orb.Point{lo[0], lo[1]}, Max: orb.Point{hi[0], hi[1]}})
		return idx
	}
	for _, p := range shell.Prisms {
		idx.insert(p.Footprint.Bound())
	}
	return idx
}

func (idx *wallIndex) insert(b orb.Bound) {
	if r, ok := toRect(b); ok {
		idx.tree.Insert(&wallSpatial{rect: r})
	}
}

func (idx *wallIndex) overlaps(b features.Box) bool {
	r, ok := toRect(Footprint(b).Bound())
	if !ok {
		return false
	}
	return len(idx.tree.SearchIntersect(r)) > 0
}

// toRect converts an orb bound to an R-tree rectangle with the bottom-left
// corner at Min.
func toRect(b orb.Bound) (rtreego.Rect, bool) {
	rect, err := rtreego.NewRect(
		rtreego.Point{b.Min[0], b.Min[1]},
		[]float64{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1]},
	)
	return rect, err == nil
}
