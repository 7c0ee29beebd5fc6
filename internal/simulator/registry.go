// Package simulator is the boundary to the external simulation engines. A
// Registry maps a generator tag to a Factory that turns one parameter record
// into a runnable Config.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/eliotheinrich/pysims/internal/param"
)

var (
	// ErrUnknownGenerator reports a tag with no registered factory.
	ErrUnknownGenerator = errors.New("unknown config generator")
	// ErrNoSimulators reports a registry left empty after loading.
	ErrNoSimulators = errors.New("no simulators available")
)

// Config is one configured simulation, ready to run.
type Config interface {
	// Tag returns the generator tag the config was built with.
	Tag() string
	// Params returns the live parameter record. Changes are seen by the
	// next Run.
	Params() param.Record
	// InjectState sets the serialized simulator state the next Run
	// continues from.
	InjectState(state []byte)
	// Run executes one run and returns its observables and final state.
	Run(ctx context.Context, meta RunMeta) (*Response, error)
}

// Factory builds a Config from a parameter record.
type Factory func(p param.Record) (Config, error)

// Registry is a concurrency-safe tag to Factory map.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	specs     map[string]Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		specs:     make(map[string]Spec),
	}
}

// Register adds or replaces the factory for tag.
func (r *Registry) Register(tag string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[tag] = f
}

// Has reports whether tag is registered.
func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[tag]
	return ok
}

// Lookup returns the factory for tag.
func (r *Registry) Lookup(tag string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, tag)
	}
	return f, nil
}

// Build looks up tag and builds a config from p.
func (r *Registry) Build(tag string, p param.Record) (Config, error) {
	f, err := r.Lookup(tag)
	if err != nil {
		return nil, err
	}
	cfg, err := f(p.Clone())
	if err != nil {
		return nil, fmt.Errorf("building %s config: %w", tag, err)
	}
	return cfg, nil
}

// Spec returns the site definition tag was loaded from, if any.
func (r *Registry) Spec(tag string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[tag]
	return s, ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.factories))
	for t := range r.factories {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
