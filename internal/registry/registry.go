// Package registry holds the in-memory mapping from process type name to
// its ordered task definitions (spec.md §4.3).
package registry

import (
	"sync"

	"github.com/delacruz/cliflow-go/internal/model"
	"github.com/delacruz/cliflow-go/internal/orcherr"
)

// ProcessType is a named, ordered list of task templates that StartProcess
// materializes into TaskData rows for every run.
type ProcessType struct {
	Name        string
	Description string
	Tasks       []model.TaskDef
}

// Registry is a concurrency-safe store of ProcessTypes, built at startup
// from a static initializer and optionally extended at runtime. Already
// running process instances keep the task list they captured at enqueue
// time, so a later Register call never retroactively changes them.
type Registry struct {
	mu    sync.RWMutex
	types map[string]ProcessType
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{types: make(map[string]ProcessType)}
}

// Register adds or replaces a ProcessType under its name.
func (r *Registry) Register(pt ProcessType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[pt.Name] = pt
}

// Get returns the ProcessType registered under name, or ErrNotFound.
func (r *Registry) Get(name string) (ProcessType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pt, ok := r.types[name]
	if !ok {
		return ProcessType{}, orcherr.ErrNotFound
	}
	return pt, nil
}

// Validate reports whether name is a registered process type.
func (r *Registry) Validate(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.types[name]
	return ok
}

// Names returns every registered process type name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}
