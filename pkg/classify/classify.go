// Package classify assigns every traced contour to exactly one of wall,
// door, window or stair. Rules run in a fixed order, window first, and
// the first match wins; anything unmatched is a wall candidate.
package classify

import (
	"fmt"
	"image"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/chazu/floorplan3d/pkg/engine"
	"github.com/chazu/floorplan3d/pkg/features"
	"github.com/chazu/floorplan3d/pkg/raster"
)

var debugEnabled = os.Getenv("FLOORPLAN_LOG_LEVEL") == "debug"

// Kind is the category of a classified region.
type Kind int

const (
	Wall Kind = iota
	Door
	Window
	Stair
)

func (k Kind) String() string {
	switch k {
	case Wall:
		return "wall"
	case Door:
		return "door"
	case Window:
		return "window"
	case Stair:
		return "stair"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Region is a classified contour. Polyline is the simplified outline and
// is only meaningful for walls; openings and stairs use Box.
type Region struct {
	Kind     Kind
	Box      features.Box
	Area     float64
	Polyline []image.Point
}

// Thresholds are the numeric cut-offs of the builtin rules. All
// comparisons are strict.
type Thresholds struct {
	WindowAspect  float64 // aspect > WindowAspect
	WindowMaxSide float64 // and min side < WindowMaxSide
	DoorMinSide   float64 // DoorMinSide < max side
	DoorMaxSide   float64 // and max side < DoorMaxSide
	StairMinArea  float64 // StairMinArea < area
	StairMaxArea  float64 // and area < StairMaxArea
	StairAspect   float64 // and aspect > StairAspect
}

// DefaultThresholds returns the stock cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WindowAspect:  3,
		WindowMaxSide: 15,
		DoorMinSide:   10,
		DoorMaxSide:   50,
		StairMinArea:  50,
		StairMaxArea:  2000,
		StairAspect:   1.2,
	}
}

// Shape holds the measurements rules are evaluated against.
type Shape struct {
	W, H    float64
	Area    float64
	Aspect  float64 // max(w/h, h/w), always >= 1
	MinSide float64
	MaxSide float64
}

// Measure derives the rule inputs from a box and an enclosed area. ok is
// false when either side is zero.
func Measure(b features.Box, area float64) (Shape, bool) {
	w, h := float64(b.W), float64(b.H)
	if w <= 0 || h <= 0 {
		return Shape{}, false
	}
	return Shape{
		W:       w,
		H:       h,
		Area:    area,
		Aspect:  max(w/h, h/w),
		MinSide: min(w, h),
		MaxSide: max(w, h),
	}, true
}

// Bindings exposes the shape to Lisp rules.
func (s Shape) Bindings() engine.Bindings {
	return engine.Bindings{
		"w":        s.W,
		"h":        s.H,
		"area":     s.Area,
		"aspect":   s.Aspect,
		"min-side": s.MinSide,
		"max-side": s.MaxSide,
	}
}

// Classifier applies the ordered rule table. It is safe for concurrent
// use.
type Classifier struct {
	t     Thresholds
	rules map[Kind]*engine.Predicate

	ruleErrors atomic.Int64
}

// New returns a Classifier using only the builtin threshold rules.
func New(t Thresholds) *Classifier {
	return &Classifier{t: t}
}

// NewScripted returns a Classifier whose window, door or stair rule is
// replaced by the matching Lisp predicate in rules. Keys are "window",
// "door" and "stair".
func NewScripted(t Thresholds, rules map[string]string, timeout time.Duration) (*Classifier, error) {
	c := New(t)
	if len(rules) == 0 {
		return c, nil
	}
	eng := engine.NewEngine(timeout)
	sample := Shape{W: 1, H: 1, Area: 1, Aspect: 1, MinSide: 1, MaxSide: 1}.Bindings()
	c.rules = make(map[Kind]*engine.Predicate, len(rules))
	for name, src := range rules {
		k, err := ruleKind(name)
		if err != nil {
			return nil, err
		}
		p, evalErrs := eng.Compile(name, src, sample)
		if len(evalErrs) > 0 {
			return nil, fmt.Errorf("rule %s: %w", name, evalErrs[0])
		}
		c.rules[k] = p
	}
	return c, nil
}

func ruleKind(name string) (Kind, error) {
	switch name {
	case "window":
		return Window, nil
	case "door":
		return Door, nil
	case "stair":
		return Stair, nil
	}
	return Wall, fmt.Errorf("unknown rule %q (want window, door or stair)", name)
}

// RuleErrors returns how many scripted rule evaluations failed so far.
// A failed rule does not match.
func (c *Classifier) RuleErrors() int64 { return c.ruleErrors.Load() }

// Classify tags one contour. ok is false when the contour has a zero
// width or height and must be skipped.
func (c *Classifier) Classify(ct raster.Contour) (Region, bool) {
	s, ok := Measure(ct.Box, ct.Area)
	if !ok {
		return Region{}, false
	}
	r := Region{Kind: c.Kind(s), Box: ct.Box, Area: ct.Area}
	if r.Kind == Wall {
		r.Polyline = ct.Simplified
	}
	return r, true
}

// All classifies contours in order, dropping the ones Classify skips.
func (c *Classifier) All(cs []raster.Contour) []Region {
	out := make([]Region, 0, len(cs))
	counts := map[Kind]int{}
	for _, ct := range cs {
		r, ok := c.Classify(ct)
		if !ok {
			continue
		}
		counts[r.Kind]++
		out = append(out, r)
	}
	if debugEnabled {
		log.Printf("[classify] %d contours: %d walls, %d doors, %d windows, %d stairs",
			len(cs), counts[Wall], counts[Door], counts[Window], counts[Stair])
	}
	return out
}

// Kind runs the rule table on a measured shape.
func (c *Classifier) Kind(s Shape) Kind {
	for _, k := range []Kind{Window, Door, Stair} {
		if c.match(k, s) {
			return k
		}
	}
	return Wall
}

func (c *Classifier) match(k Kind, s Shape) bool {
	if p, ok := c.rules[k]; ok {
		v, evalErrs, err := p.Eval(s.Bindings())
		if err != nil || len(evalErrs) > 0 {
			c.ruleErrors.Add(1)
			if err == nil {
				err = evalErrs[0]
			}
			log.Printf("[classify] rule %s failed, treating as no match: %v", p.Name, err)
			return false
		}
		return v
	}

	t := c.t
	switch k {
	case Window:
		return s.Aspect > t.WindowAspect && s.MinSide < t.WindowMaxSide
	case Door:
		return t.DoorMinSide < s.MaxSide && s.MaxSide < t.DoorMaxSide
	case Stair:
		return t.StairMinArea < s.Area && s.Area < t.StairMaxArea && s.Aspect > t.StairAspect
	}
	return false
}

// Record collects the opening and stair boxes of regions in detection
// order.
func Record(regions []Region) features.Record {
	var rec features.Record
	for _, r := range regions {
		switch r.Kind {
		case Window:
			rec.Windows = append(rec.Windows, r.Box)
		case Door:
			rec.Doors = append(rec.Doors, r.Box)
		case Stair:
			rec.Stairs = append(rec.Stairs, r.Box)
		}
	}
	rec.Normalize()
	return rec
}

// Walls returns the wall candidates of regions.
func Walls(regions []Region) []Region {
	var out []Region
	for _, r := range regions {
		if r.Kind == Wall {
			out = append(out, r)
		}
	}
	return out
}
