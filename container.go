package capsulegraph

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/capsulegraph/internal/graphmetrics"
	"github.com/vitaliisemenov/capsulegraph/internal/obslog"
	"github.com/vitaliisemenov/capsulegraph/internal/trace"
)

// Container is the runtime that owns the capsule dependency graph: the
// node table, the build/rebuild/GC machinery, and the single
// sync.RWMutex that serialises every graph mutation (spec §5). Reads of
// an already-built value can proceed under the read lock; anything that
// can create, rebuild, or remove a node takes the write lock for its
// full duration.
type Container struct {
	mu sync.RWMutex

	nodes     map[id]*node
	listeners map[id][]*listenerEntry

	nextListenerID uint64

	// building/buildStack track the capsules currently mid-build, in call
	// order, for cycle detection and diagnostics (spec §4.3, §7).
	building   map[id]bool
	buildStack []id

	// gcFrontier accumulates node ids that lost a dependent edge during
	// the build/rebuild pass currently holding the write lock; drained by
	// runGC once the pass finishes.
	gcFrontier []id

	inTransaction bool
	pendingSeeds  map[id]struct{}

	disposed bool
	poisoned bool

	logger  *slog.Logger
	metrics *graphmetrics.Metrics
	tracer  *trace.Buffer
}

// ContainerOption configures a Container at construction time.
type ContainerOption func(*Container)

// WithLogger attaches a structured logger used for build, rebuild, GC,
// and protocol-violation diagnostics.
func WithLogger(l *slog.Logger) ContainerOption {
	return func(c *Container) { c.logger = l }
}

// WithLoggerConfig builds the container's logger from cfg via obslog.New
// (the teacher's pkg/logger adaptation: slog handlers over a
// configurable writer, with gopkg.in/natefinch/lumberjack.v2 available
// for rotating file output when cfg.Output is "file"). Use WithLogger
// instead when the caller already owns a *slog.Logger to share.
func WithLoggerConfig(cfg obslog.Config) ContainerOption {
	return func(c *Container) { c.logger = obslog.New(cfg) }
}

// WithMetrics attaches a Prometheus-backed metrics sink.
func WithMetrics(m *graphmetrics.Metrics) ContainerOption {
	return func(c *Container) { c.metrics = m }
}

// WithTraceCapacity enables the in-memory event ring, retaining the last
// capacity build/rebuild/GC events for Recent.
func WithTraceCapacity(capacity int) ContainerOption {
	return func(c *Container) { c.tracer = trace.NewBuffer(capacity) }
}

// NewContainer creates an empty container.
func NewContainer(opts ...ContainerOption) *Container {
	c := &Container{
		nodes:     make(map[id]*node),
		listeners: make(map[id][]*listenerEntry),
		building:  make(map[id]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

type listenerEntry struct {
	id uint64
	fn func(any)
}

// ListenerHandle is returned by Listen; Dispose detaches the listener.
type ListenerHandle struct {
	c       *Container
	nodeID  id
	entryID uint64
}

// Dispose detaches the listener. Safe to call more than once, and safe
// to call after the owning container has been disposed.
func (h *ListenerHandle) Dispose() {
	defer func() {
		if r := recover(); r != nil && r != ErrContainerDisposed {
			panic(r)
		}
	}()
	h.c.withWriteLock(func() {
		entries := h.c.listeners[h.nodeID]
		for i, e := range entries {
			if e.id == h.entryID {
				h.c.listeners[h.nodeID] = append(entries[:i], entries[i+1:]...)
				if h.c.metrics != nil {
					h.c.metrics.ListenersActive.Dec()
				}
				break
			}
		}
		if len(h.c.listeners[h.nodeID]) == 0 {
			delete(h.c.listeners, h.nodeID)
			if n, ok := h.c.nodes[h.nodeID]; ok {
				n.hasListener = false
				h.c.gcFrontier = append(h.c.gcFrontier, h.nodeID)
				h.c.drainGC()
			}
		}
	})
}

// Ref is a zero-copy borrow of a capsule's current value, returned by
// ReadRef. Capsule bodies never mutate a value in place once built (a
// rebuild always installs a brand new value), so the pointer stays
// valid for as long as the caller holds it, even across later rebuilds
// that supersede it (spec §6).
type Ref[T any] struct {
	ptr *T
}

// Value returns the borrowed pointer.
func (r *Ref[T]) Value() *T { return r.ptr }

// Release exists for API symmetry with callers that want a paired
// acquire/release; it does nothing, since the borrow never held a lock
// past the initial call.
func (r *Ref[T]) Release() {}

// withWriteLock runs fn with the write lock held, poisoning the
// container if fn panics (spec §5): any panic raised by a capsule body
// during a build propagates to the caller of the entry point that
// triggered it, and afterwards the container behaves as if disposed.
func (c *Container) withWriteLock(fn func()) {
	c.mu.Lock()
	if c.disposed || c.poisoned {
		c.mu.Unlock()
		panic(ErrContainerDisposed)
	}
	defer func() {
		if r := recover(); r != nil {
			c.poisoned = true
			c.mu.Unlock()
			panic(r)
		}
		c.mu.Unlock()
	}()
	fn()
}

// Read returns a copy of cap's current value, building it (and any
// not-yet-built dependencies) first if necessary.
func Read[T any](c *Container, cap *Capsule[T]) T {
	targetID := cap.identity()

	c.mu.RLock()
	if c.disposed || c.poisoned {
		c.mu.RUnlock()
		panic(ErrContainerDisposed)
	}
	if n, ok := c.nodes[targetID]; ok && n.present {
		v := *(n.value.(*T))
		c.mu.RUnlock()
		return v
	}
	c.mu.RUnlock()

	var result T
	c.withWriteLock(func() {
		n := c.ensureBuilt(targetID, cap)
		result = *(n.value.(*T))
		c.drainGC()
	})
	return result
}

// ReadRef returns a zero-copy borrow of cap's current value, building it
// first if necessary.
func ReadRef[T any](c *Container, cap *Capsule[T]) *Ref[T] {
	targetID := cap.identity()

	c.mu.RLock()
	if c.disposed || c.poisoned {
		c.mu.RUnlock()
		panic(ErrContainerDisposed)
	}
	if n, ok := c.nodes[targetID]; ok && n.present {
		ptr := n.value.(*T)
		c.mu.RUnlock()
		return &Ref[T]{ptr: ptr}
	}
	c.mu.RUnlock()

	var ref *Ref[T]
	c.withWriteLock(func() {
		n := c.ensureBuilt(targetID, cap)
		ref = &Ref[T]{ptr: n.value.(*T)}
		c.drainGC()
	})
	return ref
}

// Listen attaches fn to cap: it is invoked once immediately with the
// current value, then again every time a rebuild pass installs a new
// value for cap's node. A listened-to node is exempt from garbage
// collection (spec §4.6) until the returned handle is disposed. Listener
// callbacks run synchronously on the goroutine driving the build or
// rebuild, with the container's write lock held; they must not call
// back into this container.
func Listen[T any](c *Container, cap *Capsule[T], fn func(T)) *ListenerHandle {
	targetID := cap.identity()
	var handle *ListenerHandle
	c.withWriteLock(func() {
		n := c.ensureBuilt(targetID, cap)
		n.hasListener = true
		entryID := c.nextListenerID
		c.nextListenerID++
		c.listeners[targetID] = append(c.listeners[targetID], &listenerEntry{
			id: entryID,
			fn: func(v any) { fn(*(v.(*T))) },
		})
		if c.metrics != nil {
			c.metrics.ListenersActive.Inc()
		}
		handle = &ListenerHandle{c: c, nodeID: targetID, entryID: entryID}
		fn(*(n.value.(*T)))
		c.drainGC()
	})
	return handle
}

// WithTransaction runs fn, batching every rebuild requested by a Trigger
// called during fn into a single rebuild pass executed once fn returns
// (spec §5). Nested calls run fn inline and let the outermost
// transaction perform the flush.
func (c *Container) WithTransaction(fn func()) {
	c.mu.Lock()
	if c.disposed || c.poisoned {
		c.mu.Unlock()
		panic(ErrContainerDisposed)
	}
	if c.inTransaction {
		c.mu.Unlock()
		fn()
		return
	}
	c.inTransaction = true
	c.pendingSeeds = make(map[id]struct{})
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		seeds := c.pendingSeeds
		c.inTransaction = false
		c.pendingSeeds = nil
		c.mu.Unlock()
		if len(seeds) > 0 {
			c.withWriteLock(func() {
				c.runRebuildPass(seeds)
				c.drainGC()
			})
		}
	}()
	fn()
}

// Dispose tears down the container: every node's effects are disposed in
// reverse registration order and every later entry point panics with
// ErrContainerDisposed. Safe to call more than once.
func (c *Container) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	for _, n := range c.nodes {
		n.disposeEffects()
	}
	c.nodes = nil
	c.listeners = nil
	c.disposed = true
}

// requestRebuild is the Trigger entry point (spec §4.2): outside a
// transaction it runs a rebuild pass immediately; inside one, it adds
// nodeID to the pending seed set flushed when the transaction ends.
func (c *Container) requestRebuild(nodeID id) {
	c.mu.Lock()
	if c.disposed || c.poisoned {
		c.mu.Unlock()
		return
	}
	if c.inTransaction {
		c.pendingSeeds[nodeID] = struct{}{}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.withWriteLock(func() {
		c.runRebuildPass(map[id]struct{}{nodeID: {}})
		c.drainGC()
	})
}

// onBuildStack reports whether targetID is currently being built on this
// goroutine's call chain (write lock already held by the caller).
func (c *Container) onBuildStack(targetID id) bool {
	return c.building[targetID]
}

// cyclePath renders the chain of capsule labels from where targetID
// first appears on the build stack through to targetID again, for
// CycleError.
func (c *Container) cyclePath(targetID id) []string {
	start := 0
	for i, bid := range c.buildStack {
		if bid == targetID {
			start = i
			break
		}
	}
	path := make([]string, 0, len(c.buildStack)-start+1)
	for _, bid := range c.buildStack[start:] {
		path = append(path, c.nodes[bid].ref.label())
	}
	path = append(path, c.nodes[targetID].ref.label())
	return path
}

// ensureBuilt returns the node for targetID, building it first if it has
// never been built. Called with the write lock held, either directly
// from an entry point or recursively from a capsule body's Get call.
func (c *Container) ensureBuilt(targetID id, ref capsuleRef) *node {
	n, ok := c.nodes[targetID]
	if !ok {
		n = newNode(ref)
		c.nodes[targetID] = n
	}
	if n.present {
		return n
	}
	c.buildNode(targetID, n, "")
	return n
}

// buildNode invokes ref's body once, records the dependency edges it
// established, enforces the effect protocol, fires listeners, and
// queues any dependency that lost an edge for garbage collection. It
// returns whether the node's value changed, which a rebuild pass uses
// to decide whether to propagate a build to this node's dependents
// (spec §4.5).
func (c *Container) buildNode(targetID id, n *node, passID string) bool {
	c.building[targetID] = true
	c.buildStack = append(c.buildStack, targetID)
	defer func() {
		c.buildStack = c.buildStack[:len(c.buildStack)-1]
		delete(c.building, targetID)
	}()

	isFirstBuild := !n.present
	prevSlotCount := len(n.slots)
	oldDeps := n.dependencies
	n.dependencies = make(map[id]struct{})
	n.postCallbacks = nil

	ctx := &Context{container: c, nodeID: targetID, node: n}
	value := n.ref.build(ctx)

	if !isFirstBuild && ctx.cursor != prevSlotCount {
		if c.metrics != nil {
			c.metrics.ProtocolViolationsTotal.Inc()
		}
		c.tracer.Record(trace.KindProtocol, n.ref.label(), passID)
		c.logger.Error("effect protocol violation", "capsule", n.ref.label(), "pass", passID, "effects", ctx.cursor, "previous_effects", prevSlotCount)
		panic(&EffectProtocolError{Capsule: n.ref.label(), Slot: ctx.cursor})
	}

	for oldDep := range oldDeps {
		if _, still := n.dependencies[oldDep]; !still {
			if dn, ok := c.nodes[oldDep]; ok {
				delete(dn.dependents, targetID)
				c.gcFrontier = append(c.gcFrontier, oldDep)
			}
		}
	}

	changed := true
	if !isFirstBuild {
		if eq := n.ref.equalFn(); eq != nil {
			changed = !eq(n.value, value)
		}
	}

	n.value = value
	n.present = true
	n.lastEffectCount = ctx.cursor
	n.isSuperPure = ctx.cursor == 0

	callbacks := n.postCallbacks
	n.postCallbacks = nil
	for _, cb := range callbacks {
		cb()
	}

	if c.metrics != nil {
		c.metrics.BuildsTotal.Inc()
		c.metrics.NodesActive.Set(float64(len(c.nodes)))
	}
	kind := trace.KindBuilt
	if !isFirstBuild {
		kind = trace.KindRebuilt
	}
	c.tracer.Record(kind, n.ref.label(), passID)
	c.logger.Debug("capsule built", "capsule", n.ref.label(), "pass", passID, "first_build", isFirstBuild)

	for _, entry := range c.listeners[targetID] {
		entry.fn(value)
	}
	if len(c.listeners[targetID]) > 0 {
		c.tracer.Record(trace.KindListenFire, n.ref.label(), passID)
	}

	return changed
}

func newPassID() string {
	return uuid.NewString()
}
