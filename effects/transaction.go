package effects

import "github.com/vitaliisemenov/capsulegraph"

// TransactionBuffer is the value handed back by UseTransactionBuffer: the
// last committed state plus a Stage function that queues a mutation to be
// applied atomically once the current build finishes.
type TransactionBuffer[S any] struct {
	Value S
	Stage func(func(S) S)
}

type txState[S any] struct {
	committed S
	pending   []func(S) S
}

// UseTransactionBuffer registers state S initialised to initial. Mutations
// queued through Stage during a build do not take effect immediately: they
// are applied in staging order, atomically, by a post-rebuild callback
// (spec §4.2 — "an effect may expose a post-rebuild callback ... to apply
// buffered mutations atomically") that runs once the capsule's own build
// has completed and before any dependent rebuilds. If any mutation was
// staged, the callback schedules a further rebuild so the capsule's next
// build observes the committed result.
func UseTransactionBuffer[S any](ctx *capsulegraph.Context, initial S) TransactionBuffer[S] {
	cell := capsulegraph.Register(ctx, func() txState[S] {
		return txState[S]{committed: initial}
	})
	trigger := cell.Trigger()
	committed := cell.Get().committed

	ctx.OnPostRebuild(func() {
		var staged []func(S) S
		cell.Peek(func(s *txState[S]) {
			staged = s.pending
			s.pending = nil
		})
		if len(staged) == 0 {
			return
		}
		cell.Peek(func(s *txState[S]) {
			for _, mutate := range staged {
				s.committed = mutate(s.committed)
			}
		})
		// Post-rebuild callbacks run with the container's write lock
		// already held by this goroutine (they fire from inside buildNode,
		// mid rebuild pass); calling trigger synchronously here would
		// re-enter the non-reentrant lock. Deferring to a goroutine lets
		// it block until the lock is free, same as any other concurrently
		// fired trigger (spec §5).
		go trigger()
	})

	return TransactionBuffer[S]{
		Value: committed,
		Stage: func(mutate func(S) S) {
			cell.Peek(func(s *txState[S]) {
				s.pending = append(s.pending, mutate)
			})
		},
	}
}
