// Package effects provides the higher-level side effects built on top
// of capsulegraph.Register: a small, persistent-slot vocabulary for the
// mutable state, reducers, change-gated callbacks, and async loads a
// capsule body needs, in the style of the framework's reference
// front-end bindings.
package effects

import "github.com/vitaliisemenov/capsulegraph"

// State is the value handed back by UseState: the current value plus a
// setter that commits a new one and schedules the owning capsule for
// rebuild.
type State[T any] struct {
	Value T
	Set   func(T)
}

// UseState registers a single mutable value, initialised to initial on
// the owning capsule's first build. Calling Set schedules a rebuild of
// the capsule (and, transitively, any dependent whose own value
// changes as a result).
func UseState[T any](ctx *capsulegraph.Context, initial T) State[T] {
	cell := capsulegraph.Register(ctx, func() T { return initial })
	trigger := cell.Trigger()
	return State[T]{
		Value: cell.Get(),
		Set: func(v T) {
			cell.Set(v)
			trigger()
		},
	}
}
