// Package strategy defines the Strategy interface for order-generating
// strategies, a Registry to look them up by name, the Christmas ladder
// implementation, and the Backtester that drives one strategy through
// execution and accounting.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"xmasladder/internal/domain"
	"xmasladder/internal/series"
)

// Strategy turns a price series and starting cash into intended orders.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Symbol returns the instrument the strategy trades.
	Symbol() string

	// Generate returns intended orders sorted by time ascending. An empty,
	// non-nil slice means the strategy found nothing to do.
	Generate(ctx context.Context, s *series.Series, cash float64) ([]domain.Order, error)
}

// Factory builds a strategy configured for one run.
type Factory func(p LadderParams, log *slog.Logger) (Strategy, error)

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a Registry holding the Christmas ladder.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(LadderName, func(p LadderParams, log *slog.Logger) (Strategy, error) {
		l, err := NewLadder(p, log)
		if err != nil {
			return nil, err
		}
		return l, nil
	})
	return r
}

// Register adds a factory under name, replacing any earlier one.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// it was found.
func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// New builds the named strategy. Unknown names are domain.ErrInput.
func (r *Registry) New(name string, p LadderParams, log *slog.Logger) (Strategy, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", domain.ErrInput, name)
	}
	return f(p, log)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
