package breaker

import (
	"sort"
	"sync"
	"time"

	"github.com/orbitpay/switchboard/internal/apperrors"
	"github.com/orbitpay/switchboard/internal/logging"
)

// Registry maps processor name to its breaker. One breaker per
// processor is created at construction time and lives for the process
// lifetime; Windows are mutated only through the breaker's own API.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry seeds one breaker per name in names, all sharing cfg.
func NewRegistry(names []string, cfg Config, logger logging.Logger) *Registry {
	r := &Registry{breakers: make(map[string]*Breaker, len(names))}
	for _, name := range names {
		r.breakers[name] = New(name, cfg, logger)
	}
	return r
}

// Get returns the breaker for name, or an error wrapping
// apperrors.ErrProcessorNotFound if name was never registered.
func (r *Registry) Get(name string) (*Breaker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	if !ok {
		return nil, apperrors.NotFound("breaker.Registry.Get", name)
	}
	return b, nil
}

// List returns a status report for every registered breaker, ordered
// by registration name for deterministic output.
func (r *Registry) List(now time.Time) []StatusReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reports := make([]StatusReport, 0, len(r.breakers))
	for _, b := range r.breakers {
		reports = append(reports, b.Status(now))
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })
	return reports
}

// Reset resets the named breaker to CLOSED with an empty window.
func (r *Registry) Reset(name string) error {
	b, err := r.Get(name)
	if err != nil {
		return err
	}
	b.Reset()
	return nil
}

// Inject appends k failure samples to the named breaker and forces an
// immediate trip evaluation.
func (r *Registry) Inject(name string, k int, now time.Time) error {
	b, err := r.Get(name)
	if err != nil {
		return err
	}
	b.InjectFailures(k, now)
	return nil
}

// Names returns the registered processor names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	return names
}
