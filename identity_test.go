package capsulegraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vitaliisemenov/capsulegraph"
)

func TestCapsuleIdentityIsItsOwnPointer(t *testing.T) {
	a := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int { return 1 })
	b := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int { return 1 })

	c := capsulegraph.NewContainer()
	assert.Equal(t, 1, capsulegraph.Read(c, a))
	assert.Equal(t, 1, capsulegraph.Read(c, b))

	// Two structurally identical capsules are still distinct identities.
	refA := capsulegraph.ReadRef(c, a)
	refB := capsulegraph.ReadRef(c, b)
	assert.NotSame(t, refA.Value(), refB.Value())
}

func TestNamedCapsuleLabel(t *testing.T) {
	c := capsulegraph.NewContainer()
	var x *capsulegraph.Capsule[int]
	x = capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int {
		return capsulegraph.Get(ctx, x)
	}, capsulegraph.WithName[int]("selfRef"))

	defer func() {
		r := recover()
		if err, ok := r.(*capsulegraph.CycleError); ok {
			assert.Contains(t, err.Error(), "selfRef")
		} else {
			t.Fatalf("expected *CycleError, got %#v", r)
		}
	}()
	capsulegraph.Read(c, x)
}
