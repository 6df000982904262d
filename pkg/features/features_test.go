package features

import (
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestBoxFromRect(t *testing.T) {
	b := FromRect(image.Rect(10, 20, 40, 25))
	if b != (Box{X: 10, Y: 20, W: 30, H: 5}) {
		t.Errorf("FromRect() = %+v", b)
	}
	if b.Rect() != image.Rect(10, 20, 40, 25) {
		t.Errorf("Rect() = %v", b.Rect())
	}
}

func TestBoxJSONIsArray(t *testing.T) {
	data, err := json.Marshal(Box{X: 1, Y: 2, W: 3, H: 4})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[1,2,3,4]" {
		t.Errorf("Marshal() = %s, want [1,2,3,4]", data)
	}
}

func TestBoxJSONRejectsWrongLength(t *testing.T) {
	var b Box
	if err := json.Unmarshal([]byte("[1,2,3]"), &b); err == nil {
		t.Error("Unmarshal([1,2,3]) error = nil, want error")
	}
}

func TestRecordJSONShape(t *testing.T) {
	r := Record{Doors: []Box{{X: 5, Y: 6, W: 20, H: 4}}}
	data, err := Marshal("features.json", r)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string][][]int
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("record is not {category: [[x,y,w,h]]}: %v\n%s", err, data)
	}
	for _, key := range []string{"windows", "doors", "stairs"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if !reflect.DeepEqual(raw["doors"], [][]int{{5, 6, 20, 4}}) {
		t.Errorf("doors = %v", raw["doors"])
	}
}

func TestWriteRead(t *testing.T) {
	want := Record{
		Windows: []Box{{X: 0, Y: 0, W: 40, H: 5}},
		Doors:   []Box{{X: 10, Y: 10, W: 20, H: 20}, {X: 50, Y: 10, W: 30, H: 8}},
		Stairs:  []Box{{X: 100, Y: 100, W: 30, H: 20}},
	}
	for _, name := range []string{"features.json", "features.yaml", "features.YML"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := Write(path, want); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			got, err := Read(path)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Read() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestWriteYAMLUsesFlowBoxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.yaml")
	if err := Write(path, Record{Stairs: []Box{{X: 1, Y: 2, W: 3, H: 4}}}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[1, 2, 3, 4]") {
		t.Errorf("YAML output missing flow box:\n%s", data)
	}
	if !strings.Contains(string(data), "windows: []") {
		t.Errorf("YAML output missing empty windows list:\n%s", data)
	}
}

func TestSerializationError(t *testing.T) {
	t.Run("unwritable path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing-dir", "features.json")
		err := Write(path, Record{})
		var se *SerializationError
		if !errors.As(err, &se) {
			t.Fatalf("Write() error = %v, want *SerializationError", err)
		}
		if !errors.Is(err, ErrSerialization) {
			t.Error("errors.Is(err, ErrSerialization) = false")
		}
		if se.Path != path {
			t.Errorf("Path = %q, want %q", se.Path, path)
		}
	})
	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "features.json")
		os.WriteFile(path, []byte(`{"doors": [[1,2]]}`), 0644)
		if _, err := Read(path); !errors.Is(err, ErrSerialization) {
			t.Errorf("Read() error = %v, want ErrSerialization", err)
		}
	})
}

func TestRecordSummary(t *testing.T) {
	r := Record{Windows: make([]Box, 2), Doors: make([]Box, 1)}
	if got := r.Summary(); got != "2 windows, 1 doors, 0 stairs" {
		t.Errorf("Summary() = %q", got)
	}
	if r.Openings() != 3 {
		t.Errorf("Openings() = %d, want 3", r.Openings())
	}
}
