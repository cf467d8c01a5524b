package effects_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vitaliisemenov/capsulegraph"
	"github.com/vitaliisemenov/capsulegraph/effects"
)

func TestUseStatePersistsAcrossRebuilds(t *testing.T) {
	c := capsulegraph.NewContainer()
	trigger := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) effects.State[int] {
		return effects.UseState(ctx, 0)
	})

	counter := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int {
		return capsulegraph.Get(ctx, trigger).Value
	})

	assert.Equal(t, 0, capsulegraph.Read(c, counter))
	capsulegraph.Read(c, trigger).Set(1)
	assert.Equal(t, 1, capsulegraph.Read(c, counter))
	capsulegraph.Read(c, trigger).Set(2)
	assert.Equal(t, 2, capsulegraph.Read(c, counter))
}
