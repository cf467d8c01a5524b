// Package capsulegraph is an incremental computation / reactive state
// container.
//
// # Overview
//
// Users declare pure, top-level functions called capsules; each capsule
// computes a value from other capsules it chooses to read plus side
// effects it locally registers to persist mutable state across rebuilds.
// A Container memoises capsule results, tracks the dependency graph that
// arises as capsules read each other, and rebuilds exactly the affected
// set — in a correct order — whenever a side effect signals a change.
//
// # Basic usage
//
//	c := capsulegraph.NewContainer()
//
//	count := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) effects.State[int] {
//	    return effects.UseState(ctx, 0)
//	})
//
//	plusOne := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int {
//	    return capsulegraph.Get(ctx, count).Value + 1
//	})
//
//	capsulegraph.Read(c, plusOne) // => 1
//	capsulegraph.Read(c, count).Set(5)
//	capsulegraph.Read(c, plusOne) // => 6
//
// # Dynamic families
//
//	byID := capsulegraph.NewFamily(func(ctx *capsulegraph.Context, id string) string {
//	    return "user:" + id
//	})
//	capsulegraph.Read(c, byID.Of("42")) // => "user:42"
//
// # Side effects
//
// Side effects are built on the single low-level primitive Register,
// which allocates (on a capsule's first build) or retrieves (on every
// later build) a positional, persistent *Cell. The effects subpackage
// ships ready-made effects (state, reducer, run-on-change, memoized
// future) built on top of it.
//
// # Concurrency
//
// A Container may be read from many goroutines concurrently. Any
// operation that can mutate the graph — building, rebuilding, garbage
// collection, listener attach/detach, transaction commit — runs under a
// single internal write lock for its full duration.
package capsulegraph
