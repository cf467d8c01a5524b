package effects

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vitaliisemenov/capsulegraph"
)

// Future is the value handed back by UseFuture: an in-progress or
// completed asynchronous load.
type Future[T any] struct {
	Loading bool
	Value   T
	Err     error
}

type futureCell[T any] struct {
	mu     sync.Mutex
	once   sync.Once
	state  Future[T]
	ctx    context.Context
	cancel context.CancelFunc
}

// UseFuture starts fn on a background goroutine the first time the
// owning capsule builds, and schedules a rebuild when it completes. On
// every build (including the one that starts fn) it returns the
// load's current state without blocking. fn is canceled via its context
// argument if the owning node is disposed before it completes.
func UseFuture[T any](ctx *capsulegraph.Context, fn func(context.Context) (T, error)) Future[T] {
	cell := capsulegraph.Register(ctx, func() *futureCell[T] {
		fc := &futureCell[T]{state: Future[T]{Loading: true}}
		fc.ctx, fc.cancel = context.WithCancel(context.Background())
		return fc
	})
	cell.OnDispose(func(fc *futureCell[T]) { fc.cancel() })
	trigger := cell.Trigger()
	fc := cell.Get()

	fc.once.Do(func() {
		g, gctx := errgroup.WithContext(fc.ctx)
		g.Go(func() error {
			v, err := fn(gctx)
			fc.mu.Lock()
			fc.state = Future[T]{Value: v, Err: err}
			fc.mu.Unlock()
			trigger()
			return err
		})
	})

	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.state
}
