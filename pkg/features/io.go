package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrSerialization is matched by every *SerializationError.
var ErrSerialization = errors.New("serialization failed")

// SerializationError reports a failure to encode, decode or write a record.
type SerializationError struct {
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("feature record %s: %v", e.Path, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

// Marshal encodes the record in the format selected by the path's
// extension: .yaml/.yml for YAML, anything else JSON.
func Marshal(path string, r Record) ([]byte, error) {
	r.Normalize()
	if isYAML(path) {
		return yaml.Marshal(r)
	}
	return json.MarshalIndent(r, "", "  ")
}

// Write encodes the record and writes it to path.
func Write(path string, r Record) error {
	data, err := Marshal(path, r)
	if err != nil {
		return &SerializationError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &SerializationError{Path: path, Err: err}
	}
	return nil
}

// Read loads a record written by Write.
func Read(path string) (Record, error) {
	var r Record
	data, err := os.ReadFile(path)
	if err != nil {
		return r, &SerializationError{Path: path, Err: err}
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, &r)
	} else {
		err = json.Unmarshal(data, &r)
	}
	if err != nil {
		return Record{}, &SerializationError{Path: path, Err: err}
	}
	r.Normalize()
	return r, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
