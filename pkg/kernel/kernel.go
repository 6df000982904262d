// Package kernel holds the solid geometry used by the floor plan pipeline
// and the abstract boolean kernel interface. Extrusion and union are exact
// and performed in-process on triangle meshes; subtraction is delegated to
// a pluggable backend (openscad, sdfx, manifold) registered by name.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

var (
	// ErrBooleanUnavailable reports that no working boolean backend exists.
	ErrBooleanUnavailable = errors.New("boolean kernel unavailable")
	// ErrBooleanFailed reports that the backend ran but did not produce a result.
	ErrBooleanFailed = errors.New("boolean subtraction failed")
)

// Kernel is the boolean backend interface. Backends only need to know
// how to subtract one solid from another; everything else happens on
// meshes owned by this package.
type Kernel interface {
	// Name identifies the backend in logs and status messages.
	Name() string
	// Probe checks that the backend can run. It is called once per pipeline.
	Probe(ctx context.Context) error
	// Difference returns a - b.
	Difference(ctx context.Context, a, b *Solid) (*Solid, error)
}

// Options configures backend construction.
type Options struct {
	Command   string // external executable, openscad only
	MeshCells int    // marching cubes resolution, sdfx only
}

// Factory builds a backend.
type Factory func(opts Options) (Kernel, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available to Resolve. It panics on duplicate
// names, like database/sql.Register.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("kernel: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("kernel: Register called twice for backend " + name)
	}
	registry[name] = f
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve constructs the named backend and probes it once. An unknown
// name is a configuration error. A backend that cannot be built or fails
// its probe is replaced by an Unavailable kernel carrying the cause, so
// callers always get a usable value and degrade at subtraction time.
func Resolve(ctx context.Context, name string, opts Options) (Kernel, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown kernel backend %q (registered: %v)", name, Backends())
	}

	k, err := f(opts)
	if err != nil {
		log.Printf("[kernel] backend %s unavailable: %v", name, err)
		return &Unavailable{Backend: name, Cause: err}, nil
	}
	if err := k.Probe(ctx); err != nil {
		log.Printf("[kernel] backend %s failed probe: %v", name, err)
		return &Unavailable{Backend: name, Cause: err}, nil
	}
	log.Printf("[kernel] using boolean backend %s", name)
	return k, nil
}

// Unavailable is the kernel used when no backend works. Every call
// reports ErrBooleanUnavailable.
type Unavailable struct {
	Backend string
	Cause   error
}

var _ Kernel = (*Unavailable)(nil)

func (u *Unavailable) Name() string { return u.Backend }

func (u *Unavailable) Probe(context.Context) error { return u.Err() }

func (u *Unavailable) Difference(context.Context, *Solid, *Solid) (*Solid, error) {
	return nil, u.Err()
}

// Err returns the cause wrapped in ErrBooleanUnavailable.
func (u *Unavailable) Err() error {
	if u.Cause == nil {
		return ErrBooleanUnavailable
	}
	if errors.Is(u.Cause, ErrBooleanUnavailable) {
		return u.Cause
	}
	return fmt.Errorf("%w: %v", ErrBooleanUnavailable, u.Cause)
}

func init() {
	Register("none", func(Options) (Kernel, error) {
		return &Unavailable{Backend: "none", Cause: errors.New("disabled by configuration")}, nil
	})
}
