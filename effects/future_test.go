package effects_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/capsulegraph"
	"github.com/vitaliisemenov/capsulegraph/effects"
)

func TestUseFutureResolvesAndNotifiesListener(t *testing.T) {
	c := capsulegraph.NewContainer()

	done := make(chan struct{})
	loaded := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) effects.Future[string] {
		return effects.UseFuture(ctx, func(ctx context.Context) (string, error) {
			return "loaded", nil
		})
	})

	first := capsulegraph.Read(c, loaded)
	assert.True(t, first.Loading)

	handle := capsulegraph.Listen(c, loaded, func(f effects.Future[string]) {
		if !f.Loading {
			close(done)
		}
	})
	defer handle.Dispose()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("future never resolved")
	}

	final := capsulegraph.Read(c, loaded)
	require.NoError(t, final.Err)
	assert.False(t, final.Loading)
	assert.Equal(t, "loaded", final.Value)
}
