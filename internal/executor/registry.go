package executor

import (
	"sync"

	"github.com/crtlang/crt/internal/vmerrors"
)

// Registry is a tag-keyed map of backend constructors, generalizing
// pkg/primitive_services.Registry/RegisterPrimitive/Get from a
// name-keyed map of primitives into a backend-kind-keyed map of
// constructors. Backend kinds ("cpu", "gpu", "mock") self-register at
// init() time the way the teacher's pkg/primitives/*.go files do.
type Registry struct {
	mu  sync.RWMutex
	ctr map[string]Constructor
}

var defaultRegistry = &Registry{ctr: make(map[string]Constructor)}

// Register installs ctor under kind in the default registry. Called
// from each backend file's init().
func Register(kind string, ctor Constructor) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.ctr[kind] = ctor
}

// NewWithTypeID constructs a backend of the given registered kind,
// bound to tag, and calls Init on it before returning.
func NewWithTypeID(kind string, tag uint8) (Backend, error) {
	defaultRegistry.mu.RLock()
	ctor, ok := defaultRegistry.ctr[kind]
	defaultRegistry.mu.RUnlock()
	if !ok {
		return nil, vmerrors.ErrUnknownBackendTag
	}
	b := ctor(tag)
	if err := b.Init(); err != nil {
		return nil, err
	}
	return b, nil
}

// Kinds returns every backend kind currently registered, for
// diagnostics and the REPL's "list" built-in.
func Kinds() []string {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	kinds := make([]string, 0, len(defaultRegistry.ctr))
	for k := range defaultRegistry.ctr {
		kinds = append(kinds, k)
	}
	return kinds
}
