package storage

import (
	"fmt"
	"sync"

	"github.com/MeKo-Tech/tilestore/internal/config"
)

// Constructor builds a Storage from its configuration subtree. The
// Factory parameter lets a composite backend (union, per_style, ...)
// recursively construct its children without importing the registry's
// own package back into each backend package.
type Constructor func(cfg config.Tree, factory *Factory) (Storage, error)

// Factory is the process-wide type-tag to Constructor registry. The
// zero value is not usable; use NewFactory, or the package-level
// Default factory that backend packages register themselves against
// in their init() functions.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
	// frozen is set by Freeze, after which Register panics. This
	// matches the original single-phase-init discipline: backends
	// register themselves during package init, before any server
	// starts constructing storage graphs.
	frozen bool
}

// NewFactory returns an empty, unfrozen Factory.
func NewFactory() *Factory {
	return &Factory{ctors: make(map[string]Constructor)}
}

// Default is the factory that backend packages register against via
// their init() functions, and that the CLI builds storage graphs from.
var Default = NewFactory()

// Register associates a type tag (the "type" config key) with a
// constructor. It panics if called after Freeze, or with a tag already
// registered; both indicate a programming error, not a runtime
// condition a caller can usefully recover from.
func (f *Factory) Register(typeTag string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen {
		panic("storage: Register(" + typeTag + ") called after Freeze")
	}
	if _, exists := f.ctors[typeTag]; exists {
		panic("storage: duplicate registration for type " + typeTag)
	}
	f.ctors[typeTag] = ctor
}

// Freeze stops further registration. The CLI calls this once all
// backend packages have been imported (and so have run their init
// functions), making the registry's contents stable for the rest of
// the process lifetime.
func (f *Factory) Freeze() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frozen = true
}

// Create builds a Storage from a configuration subtree. The subtree
// must carry a "type" key naming a registered backend; Create resolves
// that constructor and invokes it with the remaining subtree.
func (f *Factory) Create(cfg config.Tree) (Storage, error) {
	typeTag, ok := cfg.Get("type")
	if !ok {
		return nil, fmt.Errorf("storage: config subtree is missing required key %q", "type")
	}

	f.mu.RLock()
	ctor, ok := f.ctors[typeTag]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no backend registered for type %q", typeTag)
	}

	s, err := ctor(cfg, f)
	if err != nil {
		return nil, fmt.Errorf("storage: constructing %q backend: %w", typeTag, err)
	}
	return s, nil
}

// CreateChild resolves and constructs the named child of cfg, e.g. the
// "primary" or "secondary" entry of a union backend's configuration.
func (f *Factory) CreateChild(cfg config.Tree, name string) (Storage, error) {
	child := cfg.Subtree(name)
	s, err := f.Create(child)
	if err != nil {
		return nil, fmt.Errorf("storage: child %q: %w", name, err)
	}
	return s, nil
}
