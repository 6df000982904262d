//go:build !manifold

// Package manifold provides a CGo-based boolean backend binding to the
// Manifold library. When the "manifold" build tag is not set, this stub
// package is compiled instead, returning an error from New().
//
// Build with: go build -tags=manifold
package manifold

import (
	"fmt"

	"github.com/chazu/floorplan3d/pkg/kernel"
)

func init() {
	kernel.Register("manifold", func(kernel.Options) (kernel.Kernel, error) {
		return New()
	})
}

// New returns an error indicating Manifold is not available.
// Build with -tags=manifold to enable.
func New() (kernel.Kernel, error) {
	return nil, fmt.Errorf("manifold kernel not available: build with -tags=manifold: %w", kernel.ErrBooleanUnavailable)
}
