package capsulegraph

// Context is the build context handed to a capsule body: a reader for
// other capsules (Get) and a registrar for side effects (Register),
// per spec §4.3.
type Context struct {
	container *Container
	nodeID    id
	node      *node
	cursor    int
}

// OnPostRebuild registers a callback that runs once, immediately after
// this build finishes and before any of this capsule's dependents are
// rebuilt in the same pass (spec §4.2). It is meant for side effects
// that buffer mutations during a build and need to apply them
// atomically once the new value is committed (e.g. a transactional
// effect).
func (ctx *Context) OnPostRebuild(fn func()) {
	ctx.node.postCallbacks = append(ctx.node.postCallbacks, fn)
}

// Get reads another capsule's current value, building it first if
// necessary. Reading records a dependency edge from the calling
// capsule to cap, replacing whatever edge existed from the previous
// build (spec §4.3, §4.5).
func Get[T any](ctx *Context, cap *Capsule[T]) T {
	c := ctx.container
	targetID := cap.identity()

	if c.onBuildStack(targetID) {
		panic(&CycleError{Path: c.cyclePath(targetID)})
	}

	n := c.ensureBuilt(targetID, cap)

	ctx.node.dependencies[targetID] = struct{}{}
	n.dependents[ctx.nodeID] = struct{}{}

	return *(n.value.(*T))
}
