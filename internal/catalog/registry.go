package catalog

import (
	"path/filepath"
	"sync"
)

// Registry hands out Catalog handles shared by absolute path, so the many
// components that each want "the catalog at /var/lib/zorigami/catalog.db"
// (backup pipeline, restore engine, supervisor, administrative commands)
// converge on one open *bolt.DB instead of racing for its file lock.
// Conceptually this mirrors a weak-reference table: an entry survives only
// as long as at least one caller holds a live Catalog obtained through it.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	cat   *Catalog
	count int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Open returns a Catalog for the absolute form of path, opening the
// underlying database on first use and incrementing the shared reference
// count on every call. Each returned *Catalog must be paired with exactly
// one Close.
func (r *Registry) Open(path string) (*Catalog, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[abs]; ok {
		e.count++
		return &Catalog{db: e.cat.db, path: abs, reg: r}, nil
	}

	cat, err := Open(abs)
	if err != nil {
		return nil, err
	}
	r.entries[abs] = &registryEntry{cat: cat, count: 1}
	return &Catalog{db: cat.db, path: abs, reg: r}, nil
}

func (r *Registry) release(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[path]
	if !ok {
		return nil
	}
	e.count--
	if e.count > 0 {
		return nil
	}
	delete(r.entries, path)
	return e.cat.db.Close()
}

// refCount reports the number of live strong references to the catalog at
// path, or zero if it is not currently open through this Registry.
func (r *Registry) refCount(path string) int {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[abs]; ok {
		return e.count
	}
	return 0
}
