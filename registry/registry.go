// Package registry maps job types to handlers. Handlers registered through
// RegisterExternal take precedence over the ones installed with Register,
// which is how callers override the default handlers.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/BranchIntl/jobqueue/errors"
	"github.com/BranchIntl/jobqueue/job"
)

// Registry is a thread-safe handler registry
type Registry struct {
	mu       sync.RWMutex
	handlers map[job.Type]job.Handler
	external map[job.Type]job.Handler

	services   atomic.Pointer[Services]
	production bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[job.Type]job.Handler),
		external: make(map[job.Type]job.Handler),
	}
}

// Register adds a handler for a job type
func (r *Registry) Register(t job.Type, handler job.Handler) error {
	if err := validate(t, handler); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[t] = handler
	return nil
}

// RegisterExternal adds a handler that wins over any handler added with
// Register for the same type
func (r *Registry) RegisterExternal(t job.Type, handler job.Handler) error {
	if err := validate(t, handler); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.external[t] = handler
	return nil
}

// Get retrieves the effective handler for a job type
func (r *Registry) Get(t job.Type) (job.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.external[t]; ok {
		return h, true
	}
	h, ok := r.handlers[t]
	return h, ok
}

// List returns all job types with a handler, sorted
func (r *Registry) List() []job.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[job.Type]struct{}, len(r.handlers)+len(r.external))
	for t := range r.handlers {
		seen[t] = struct{}{}
	}
	for t := range r.external {
		seen[t] = struct{}{}
	}

	types := make([]job.Type, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Remove unregisters every handler for a job type
func (r *Registry) Remove(t job.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers, t)
	delete(r.external, t)
	return nil
}

// Clear removes all registered handlers
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = make(map[job.Type]job.Handler)
	r.external = make(map[job.Type]job.Handler)
}

func validate(t job.Type, handler job.Handler) error {
	if t == "" {
		return errors.ErrEmptyJobType
	}
	if !t.Valid() {
		return errors.ErrUnknownJobType
	}
	if handler == nil {
		return errors.ErrNilHandler
	}
	return nil
}
