// Package features holds the structured record of detected floor plan
// features: window, door and stair bounding boxes in pixel units.
package features

import (
	"encoding/json"
	"fmt"
	"image"

	"gopkg.in/yaml.v3"
)

// Box is an axis-aligned bounding box in pixel units. W and H count
// pixels, so a box spanning columns 10..19 has X=10, W=10.
type Box struct {
	X, Y, W, H int
}

// FromRect converts an image rectangle (Max exclusive) to a Box.
func FromRect(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Rect returns the box as an image rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// MarshalJSON encodes the box as [x, y, width, height].
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X, b.Y, b.W, b.H})
}

// UnmarshalJSON decodes [x, y, width, height].
func (b *Box) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return b.set(v)
}

// MarshalYAML encodes the box as a flow sequence [x, y, width, height].
func (b Box) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range [4]int{b.X, b.Y, b.W, b.H} {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(v)})
	}
	return n, nil
}

// UnmarshalYAML decodes [x, y, width, height].
func (b *Box) UnmarshalYAML(value *yaml.Node) error {
	var v []int
	if err := value.Decode(&v); err != nil {
		return err
	}
	return b.set(v)
}

func (b *Box) set(v []int) error {
	if len(v) != 4 {
		return fmt.Errorf("box needs 4 values [x, y, width, height], got %d", len(v))
	}
	*b = Box{X: v[0], Y: v[1], W: v[2], H: v[3]}
	return nil
}

// Record is the feature record written next to the model. Lists keep
// detection order.
type Record struct {
	Windows []Box `json:"windows" yaml:"windows"`
	Doors   []Box `json:"doors" yaml:"doors"`
	Stairs  []Box `json:"stairs" yaml:"stairs"`
}

// Normalize replaces nil lists with empty ones so every category is
// present in the encoded record.
func (r *Record) Normalize() {
	if r.Windows == nil {
		r.Windows = []Box{}
	}
	if r.Doors == nil {
		r.Doors = []Box{}
	}
	if r.Stairs == nil {
		r.Stairs = []Box{}
	}
}

// Openings returns the number of doors and windows.
func (r Record) Openings() int {
	return len(r.Doors) + len(r.Windows)
}

// Summary is a short human readable count of the record.
func (r Record) Summary() string {
	return fmt.Sprintf("%d windows, %d doors, %d stairs", len(r.Windows), len(r.Doors), len(r.Stairs))
}
