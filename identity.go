package capsulegraph

import "fmt"

// id is the opaque, hashable identity of a node in the container's graph.
// For a static capsule it is the *Capsule[T] pointer itself; for a capsule
// bound out of a Family it is a dynamicID value combining the family
// pointer with the user-supplied key.
type id = any

// dynamicID is the identity of a capsule produced by Family.Of(key): two
// calls with an equal key collapse onto the same node even though each
// call may return a distinct *Capsule[T] wrapper.
type dynamicID[K comparable] struct {
	family any
	key    K
}

// capsuleRef is the internal, type-erased interface every *Capsule[T]
// satisfies. The container only ever deals in capsuleRef and id; the
// generic Capsule[T] wrapper exists purely for compile-time type safety
// at the call site.
type capsuleRef interface {
	identity() id
	label() string
	build(ctx *Context) any
	equalFn() func(old, new any) bool
}

// Capsule is a handle to a single node: a pure function of other capsules
// and locally registered side effects. Construct one with NewCapsule.
type Capsule[T any] struct {
	id    id
	name  string
	body  func(ctx *Context) T
	equal func(a, b T) bool
}

func (c *Capsule[T]) identity() id { return c.id }

func (c *Capsule[T]) label() string {
	if c.name != "" {
		return c.name
	}
	return fmt.Sprintf("capsule@%p", c)
}

// build invokes the capsule body and boxes the result as *T so that
// ReadRef can hand callers a pointer straight into the stored value
// without an extra clone (Read/Get still dereference and copy).
func (c *Capsule[T]) build(ctx *Context) any {
	v := c.body(ctx)
	return &v
}

func (c *Capsule[T]) equalFn() func(old, new any) bool {
	if c.equal == nil {
		return nil
	}
	return func(old, new any) bool {
		return c.equal(*old.(*T), *new.(*T))
	}
}

// Option configures a Capsule at construction time.
type Option[T any] func(*Capsule[T])

// WithEquality opts a capsule into equality-based rebuild pruning
// (spec §4.5 step 8): when a rebuild produces a value equal to the
// previous one under eq, the capsule does not cause its dependents to be
// rebuilt this pass. A dependent is still rebuilt if another of its
// dependencies changed.
func WithEquality[T any](eq func(a, b T) bool) Option[T] {
	return func(c *Capsule[T]) { c.equal = eq }
}

// WithName attaches a diagnostic label used in logs, traces, and cycle
// error messages. Optional; capsules are usable without one.
func WithName[T any](name string) Option[T] {
	return func(c *Capsule[T]) { c.name = name }
}

// NewCapsule declares a capsule: a pure function from a Context to a
// value. Its identity is the returned pointer itself, so every Read of
// the same *Capsule[T] addresses the same node.
func NewCapsule[T any](body func(ctx *Context) T, opts ...Option[T]) *Capsule[T] {
	c := &Capsule[T]{body: body}
	for _, opt := range opts {
		opt(c)
	}
	c.id = c
	return c
}

// Family is a parameterised capsule: a body that additionally takes a
// hashable, comparable key. Family.Of(key) yields the capsule for that
// key; two keys that compare equal address the same node.
type Family[K comparable, T any] struct {
	name  string
	body  func(ctx *Context, key K) T
	equal func(a, b T) bool
}

// FamilyOption configures a Family at construction time.
type FamilyOption[T any] func(*familyOptions[T])

type familyOptions[T any] struct {
	name  string
	equal func(a, b T) bool
}

// WithFamilyEquality is the Family analogue of WithEquality.
func WithFamilyEquality[T any](eq func(a, b T) bool) FamilyOption[T] {
	return func(o *familyOptions[T]) { o.equal = eq }
}

// WithFamilyName attaches a diagnostic label to every capsule the family
// produces.
func WithFamilyName[T any](name string) FamilyOption[T] {
	return func(o *familyOptions[T]) { o.name = name }
}

// NewFamily declares a dynamic capsule family.
func NewFamily[K comparable, T any](body func(ctx *Context, key K) T, opts ...FamilyOption[T]) *Family[K, T] {
	var o familyOptions[T]
	for _, opt := range opts {
		opt(&o)
	}
	return &Family[K, T]{name: o.name, body: body, equal: o.equal}
}

// Of returns the capsule handle bound to key. Calling Of twice with equal
// keys yields handles that address the same node.
func (f *Family[K, T]) Of(key K) *Capsule[T] {
	bound := &Capsule[T]{
		id:    dynamicID[K]{family: f, key: key},
		name:  f.familyLabel(key),
		equal: f.equal,
	}
	bound.body = func(ctx *Context) T { return f.body(ctx, key) }
	return bound
}

func (f *Family[K, T]) familyLabel(key K) string {
	if f.name != "" {
		return fmt.Sprintf("%s[%v]", f.name, key)
	}
	return fmt.Sprintf("family@%p[%v]", f, key)
}
