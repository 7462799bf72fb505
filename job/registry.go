package job

import (
	"fmt"
	"sync"

	"github.com/xraph/chrono"
)

// Registry maps job IDs to definitions and remembers registration order,
// which is the order the scheduler evaluates triggers in. It is safe for
// concurrent use, though in practice it is written at startup only.
type Registry struct {
	mu           sync.RWMutex
	defs         map[string]*Definition
	order        []string
	defaultRetry *RetryPolicy
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]*Definition),
	}
}

// SetDefaultRetry sets the policy given to definitions registered without
// one. Definitions already registered are not changed.
func (r *Registry) SetDefaultRetry(p *RetryPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultRetry = p
}

// Register adds def. It fails for an empty ID or one already taken.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("%w: empty job id", chrono.ErrInvalidJob)
	}
	if def.Handler == nil {
		return fmt.Errorf("%w: job %q has no handler", chrono.ErrInvalidJob, def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[def.ID]; ok {
		return fmt.Errorf("%w: %q", chrono.ErrDuplicateJob, def.ID)
	}
	if def.Retry == nil && r.defaultRetry != nil {
		p := *r.defaultRetry
		def.Retry = &p
	}
	r.defs[def.ID] = def
	r.order = append(r.order, def.ID)
	return nil
}

// Get returns the definition registered under id.
func (r *Registry) Get(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

// All returns every definition in registration order.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

// IDs returns every registered job ID in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Validate runs Validate over the registered definitions.
func (r *Registry) Validate() []ValidationError {
	return Validate(r.All())
}
