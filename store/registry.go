package store

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Fingerprinter is implemented by every store description.
type Fingerprinter interface {
	Fingerprint() string
}

// Registry shares one store per distinct description. Stores are built at
// most once per fingerprint, even under concurrent first use, and are
// reference counted: every Resolve must be paired with a Release.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	group   singleflight.Group
}

type registryEntry struct {
	store any
	refs  int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
	}
}

// DefaultRegistry is the process-wide registry.
var DefaultRegistry = NewRegistry()

// Resolve returns the store described by d, building it on first use.
func Resolve[PK comparable, ID comparable, D any](r *Registry, d Description[PK, ID, D]) (Store[PK, ID, D], error) {
	v, err := r.acquire(d.Fingerprint(), func() (any, error) { return d.Build() })
	if err != nil {
		return nil, err
	}
	return typed[Store[PK, ID, D]](v)
}

// ResolveID is Resolve for id-arity descriptions.
func ResolveID[ID comparable, D any](r *Registry, d IDDescription[ID, D]) (IDStore[ID, D], error) {
	v, err := r.acquire(d.Fingerprint(), func() (any, error) { return d.Build() })
	if err != nil {
		return nil, err
	}
	return typed[IDStore[ID, D]](v)
}

// ResolveSingleton is Resolve for singleton descriptions.
func ResolveSingleton[D any](r *Registry, d SingletonDescription[D]) (SingletonStore[D], error) {
	v, err := r.acquire(d.Fingerprint(), func() (any, error) { return d.Build() })
	if err != nil {
		return nil, err
	}
	return typed[SingletonStore[D]](v)
}

func typed[S any](v any) (S, error) {
	s, ok := v.(S)
	if !ok {
		var zero S
		return zero, fmt.Errorf("%w: registry holds %T for this description", ErrInvalidDescription, v)
	}
	return s, nil
}

// acquire returns the entry for key, building it with build if needed, and
// takes a reference on it.
func (r *Registry) acquire(key string, build func() (any, error)) (any, error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		e.refs++
		r.mu.Unlock()
		return e.store, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.Lock()
		if e, ok := r.entries[key]; ok {
			r.mu.Unlock()
			return e.store, nil
		}
		r.mu.Unlock()

		s, err := build()
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.entries[key] = &registryEntry{store: s}
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		// Released to zero between build and here.
		e = &registryEntry{store: v}
		r.entries[key] = e
	}
	e.refs++
	return e.store, nil
}

// Release drops one reference to the store described by d and evicts it when
// none remain. It returns the number of references left.
func (r *Registry) Release(d Fingerprinter) int {
	key := d.Fingerprint()

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return 0
	}
	e.refs--
	if e.refs <= 0 {
		delete(r.entries, key)
		return 0
	}
	return e.refs
}

// Len returns the number of cached stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
