package effects

import "github.com/vitaliisemenov/capsulegraph"

// Reducer computes the next state from the current state and a
// dispatched action.
type Reducer[S, A any] func(state S, action A) S

// ReducerState is the value handed back by UseReducer.
type ReducerState[S, A any] struct {
	Value    S
	Dispatch func(A)
}

// UseReducer registers state S managed by reducer, initialised to
// initial. Dispatch applies reducer to the current state and the
// dispatched action, commits the result, and schedules a rebuild.
func UseReducer[S, A any](ctx *capsulegraph.Context, reducer Reducer[S, A], initial S) ReducerState[S, A] {
	cell := capsulegraph.Register(ctx, func() S { return initial })
	trigger := cell.Trigger()
	return ReducerState[S, A]{
		Value: cell.Get(),
		Dispatch: func(action A) {
			cell.Update(func(s S) S { return reducer(s, action) })
			trigger()
		},
	}
}
