package effects

import "github.com/vitaliisemenov/capsulegraph"

type runOnChangeState[D comparable] struct {
	has bool
	dep D
}

// RunOnChange calls fn during a build only if dep differs from the
// value observed on the capsule's previous build (or on its first
// build). Useful for capsule bodies that need to react to a change in
// one of their Get results without recomputing on every rebuild.
func RunOnChange[D comparable](ctx *capsulegraph.Context, dep D, fn func()) {
	cell := capsulegraph.Register(ctx, func() runOnChangeState[D] {
		return runOnChangeState[D]{}
	})

	state := cell.Get()
	if state.has && state.dep == dep {
		return
	}
	cell.Set(runOnChangeState[D]{has: true, dep: dep})
	fn()
}
