// Package strategy defines the generator contracts that turn prices into
// target positions, the held-position scan they share, and a Registry for
// looking generators up by name.
package strategy

import (
	"fmt"
	"sort"

	"quantgym/internal/domain"
)

// Change is a per-bar signal event. Generators emit changes; HoldPositions
// folds them into held target positions. Exit marks a bar where an exit rule
// matched: it overrides an entry on the same bar but does not close a held
// position.
type Change int8

const (
	NoChange Change = iota
	EnterLong
	EnterShort
	Exit
)

func (c Change) String() string {
	switch c {
	case EnterLong:
		return "enter_long"
	case EnterShort:
		return "enter_short"
	case Exit:
		return "exit"
	default:
		return "no_change"
	}
}

// HoldPositions carries the last entered direction forward until an
// opposite entry. NoChange and Exit both keep the previous position. The
// output has the same length as changes and starts flat.
func HoldPositions(changes []Change) []domain.Signal {
	out := make([]domain.Signal, len(changes))
	held := domain.SignalFlat
	for i, c := range changes {
		switch c {
		case EnterLong:
			held = domain.SignalLong
		case EnterShort:
			held = domain.SignalShort
		}
		out[i] = held
	}
	return out
}

// Strategy is the common part of every generator.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string
}

// Generator produces a target position per price timestamp for one asset.
type Generator interface {
	Strategy

	// Generate returns a signal series on prices' timestamps.
	Generate(prices domain.PriceSeries) (domain.SignalSeries, error)
}

// PairGenerator produces offsetting positions for two assets.
type PairGenerator interface {
	Strategy

	// GeneratePairs returns positions on the timestamps present in both
	// series.
	GeneratePairs(a, b domain.PriceSeries) (domain.PairPositions, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name(). A later
// registration under the same name replaces the earlier one.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Generator returns the single-asset generator registered under name.
func (r *Registry) Generator(name string) (Generator, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	g, ok := s.(Generator)
	if !ok {
		return nil, fmt.Errorf("strategy %q is not a single-asset strategy", name)
	}
	return g, nil
}

// PairGenerator returns the pairs generator registered under name.
func (r *Registry) PairGenerator(name string) (PairGenerator, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	g, ok := s.(PairGenerator)
	if !ok {
		return nil, fmt.Errorf("strategy %q is not a pairs strategy", name)
	}
	return g, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
