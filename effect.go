package capsulegraph

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Trigger is handed to a side effect when it is first registered. Calling
// it enqueues the owning node for rebuild. It is cheap to clone (it is
// already a plain closure), safe to call from any goroutine that does not
// hold the container's write lock (a call from a capsule body, a
// post-rebuild callback, or a listener blocks forever), and becomes
// a permanent no-op once the owning node has been disposed — by explicit
// Dispose, by garbage collection, or because the whole container was
// disposed (spec §4.2, §7).
type Trigger func()

// Cell is the persistent, positional slot a side effect is built on. The
// same *Cell[S] is returned from every Register call at a given slot
// position: the first call allocates it via init, every later call at
// that position returns the already-allocated cell untouched.
//
// Cell exposes both idioms spec §9 leaves open for effect APIs: Get
// clones the current state out, Peek hands a visitor function a pointer
// to the state under the cell's own lock for zero-copy access.
type Cell[S any] struct {
	mu      sync.Mutex
	value   S
	dispose func(S)

	c        *Container
	nodeID   id
	disposed *atomic.Bool // alias to the owning node's disposed flag
}

// Get returns a copy of the cell's current state.
func (cell *Cell[S]) Get() S {
	cell.mu.Lock()
	defer cell.mu.Unlock()
	return cell.value
}

// Set replaces the cell's state. It does not by itself schedule a
// rebuild; pair it with Trigger() to do so.
func (cell *Cell[S]) Set(v S) {
	cell.mu.Lock()
	cell.value = v
	cell.mu.Unlock()
}

// Update atomically replaces the cell's state with fn applied to the
// current state, returning the new value.
func (cell *Cell[S]) Update(fn func(S) S) S {
	cell.mu.Lock()
	defer cell.mu.Unlock()
	cell.value = fn(cell.value)
	return cell.value
}

// Peek hands visit a pointer to the cell's state for the duration of the
// call, under the cell's lock, without copying it out.
func (cell *Cell[S]) Peek(visit func(*S)) {
	cell.mu.Lock()
	defer cell.mu.Unlock()
	visit(&cell.value)
}

// OnDispose registers a cleanup hook run when the owning node is
// disposed (explicit Dispose or garbage collection), in reverse
// registration order relative to the node's other effects (spec §4.4).
// Calling OnDispose more than once replaces the previously set hook.
func (cell *Cell[S]) OnDispose(fn func(S)) {
	cell.mu.Lock()
	cell.dispose = fn
	cell.mu.Unlock()
}

func (cell *Cell[S]) disposeSelf() {
	cell.mu.Lock()
	hook := cell.dispose
	v := cell.value
	cell.mu.Unlock()
	if hook != nil {
		hook(v)
	}
}

// Trigger returns the rebuild-trigger bound to this cell's owning node.
func (cell *Cell[S]) Trigger() Trigger {
	return func() {
		if cell.disposed.Load() {
			return
		}
		cell.c.requestRebuild(cell.nodeID)
	}
}

// Register is the low-level side-effect registrar (spec §4.2, §4.3). On
// a capsule's first build, calling Register at a given position
// allocates a new *Cell[S] via init. On every later build, calling
// Register at the same position returns the very same *Cell[S] — init is
// not called again. Capsules must call Register (directly, or through a
// higher-level effect built on it) in the same order on every build;
// see EffectProtocolError.
func Register[S any](ctx *Context, init func() S) *Cell[S] {
	n := ctx.node
	idx := ctx.cursor
	ctx.cursor++

	if idx < len(n.slots) {
		cell, ok := n.slots[idx].(*Cell[S])
		if !ok {
			c := ctx.container
			if c.metrics != nil {
				c.metrics.ProtocolViolationsTotal.Inc()
			}
			c.logger.Error("effect protocol violation", "capsule", n.ref.label(), "slot", idx)
			panic(&EffectProtocolError{
				Capsule:  n.ref.label(),
				Slot:     idx,
				Expected: typeNameOfSlot(n.slots[idx]),
				Got:      typeNameOfCell[S](),
			})
		}
		return cell
	}

	cell := &Cell[S]{
		c:        ctx.container,
		nodeID:   ctx.nodeID,
		disposed: &n.disposed,
	}
	cell.value = init()
	n.slots = append(n.slots, cell)
	return cell
}

func typeNameOfSlot(slot any) string {
	return fmt.Sprintf("%T", slot)
}

func typeNameOfCell[S any]() string {
	var zero *Cell[S]
	return fmt.Sprintf("%T", zero)
}
