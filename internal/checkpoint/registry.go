package checkpoint

import (
	"fmt"
	"sync"

	"github.com/haasonsaas/overseer/internal/checkpoint/sources"
)

// Factory builds a checking-point instance from a name, config, and
// source. Concrete point packages register factories at init time.
type Factory func(name string, config PointConfig, source sources.Source) (CheckingPoint, error)

// Registry holds the known checking-point types and their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// defaultRegistry collects the init-time registrations from the concrete
// point files in this package.
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry populated at package init.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a factory under a type identifier. Incomplete
// registrations are rejected: the factory must be non-nil and must
// produce a point that reports the registered type.
func (r *Registry) Register(pointType string, factory Factory) error {
	if pointType == "" {
		return fmt.Errorf("checkpoint: empty type")
	}
	if factory == nil {
		return fmt.Errorf("checkpoint: nil factory for type %s", pointType)
	}
	probe, err := factory("probe", DefaultPointConfig(), nil)
	if err != nil {
		return fmt.Errorf("checkpoint: factory for %s failed probe: %w", pointType, err)
	}
	if probe == nil {
		return fmt.Errorf("checkpoint: factory for %s produced nil point", pointType)
	}
	if probe.Type() != pointType {
		return fmt.Errorf("checkpoint: factory for %s produced type %s", pointType, probe.Type())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[pointType]; exists {
		return fmt.Errorf("checkpoint: type %s already registered", pointType)
	}
	r.factories[pointType] = factory
	return nil
}

// mustRegister panics on registration failure; used only at package init
// where a broken registration is a programming error.
func mustRegister(pointType string, factory Factory) {
	if err := defaultRegistry.Register(pointType, factory); err != nil {
		panic(err)
	}
}

// Types returns the registered type identifiers.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	return out
}

// Instantiate builds a point of the given type.
func (r *Registry) Instantiate(pointType, name string, config PointConfig, source sources.Source) (CheckingPoint, error) {
	r.mu.RLock()
	factory, ok := r.factories[pointType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("checkpoint: unknown type %s", pointType)
	}
	return factory(name, config, source)
}

// Set is an instantiated collection of points with lookup helpers.
type Set struct {
	mu     sync.RWMutex
	points []CheckingPoint
}

// NewSet creates a point set.
func NewSet(points ...CheckingPoint) *Set {
	return &Set{points: points}
}

// Add appends a point to the set.
func (s *Set) Add(point CheckingPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, point)
}

// Replace swaps the whole set; used for configuration hot-swap between
// scheduler cycles.
func (s *Set) Replace(points []CheckingPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append([]CheckingPoint(nil), points...)
}

// GetByName returns the named point.
func (s *Set) GetByName(name string) (CheckingPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.points {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// GetByType returns every point of the given type.
func (s *Set) GetByType(pointType string) []CheckingPoint {
	return s.Filter(func(p CheckingPoint) bool { return p.Type() == pointType })
}

// All returns a snapshot of the set.
func (s *Set) All() []CheckingPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CheckingPoint(nil), s.points...)
}

// Filter returns the points matching the predicate.
func (s *Set) Filter(predicate func(CheckingPoint) bool) []CheckingPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CheckingPoint
	for _, p := range s.points {
		if predicate(p) {
			out = append(out, p)
		}
	}
	return out
}
