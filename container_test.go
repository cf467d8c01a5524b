package capsulegraph_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/capsulegraph"
	"github.com/vitaliisemenov/capsulegraph/effects"
	"github.com/vitaliisemenov/capsulegraph/internal/graphmetrics"
	"github.com/vitaliisemenov/capsulegraph/internal/obslog"
)

func TestReadBuildsOnce(t *testing.T) {
	c := capsulegraph.NewContainer()
	builds := 0
	greeting := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) string {
		builds++
		return "hello"
	})

	assert.Equal(t, "hello", capsulegraph.Read(c, greeting))
	assert.Equal(t, "hello", capsulegraph.Read(c, greeting))
	assert.Equal(t, 1, builds, "a capsule with no changed dependencies builds exactly once")
}

func TestGetTracksDependency(t *testing.T) {
	c := capsulegraph.NewContainer()

	count := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) effects.State[int] {
		return effects.UseState(ctx, 1)
	})
	plusOne := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int {
		return capsulegraph.Get(ctx, count).Value + 1
	})

	assert.Equal(t, 2, capsulegraph.Read(c, plusOne))

	capsulegraph.Read(c, count).Set(5)
	assert.Equal(t, 6, capsulegraph.Read(c, plusOne))
}

func TestFamilyKeyIdentity(t *testing.T) {
	c := capsulegraph.NewContainer()
	builds := map[string]int{}

	byID := capsulegraph.NewFamily(func(ctx *capsulegraph.Context, id string) string {
		builds[id]++
		return "user:" + id
	})

	assert.Equal(t, "user:42", capsulegraph.Read(c, byID.Of("42")))
	assert.Equal(t, "user:42", capsulegraph.Read(c, byID.Of("42")))
	assert.Equal(t, "user:7", capsulegraph.Read(c, byID.Of("7")))

	assert.Equal(t, 1, builds["42"], "two Of calls with an equal key address the same node")
	assert.Equal(t, 1, builds["7"])
}

func TestReadRefIsZeroCopyAndStable(t *testing.T) {
	c := capsulegraph.NewContainer()
	count := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) effects.State[int] {
		return effects.UseState(ctx, 1)
	})
	doubled := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int {
		return capsulegraph.Get(ctx, count).Value * 2
	})

	ref := capsulegraph.ReadRef(c, doubled)
	require.Equal(t, 2, *ref.Value())

	capsulegraph.Read(c, count).Set(10)

	// The old borrow still reads the value it was given; it was never
	// mutated in place, only superseded by a new build.
	assert.Equal(t, 2, *ref.Value())
	assert.Equal(t, 20, capsulegraph.Read(c, doubled))
}

func TestCycleDetected(t *testing.T) {
	c := capsulegraph.NewContainer()
	var b *capsulegraph.Capsule[int]
	a := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int {
		return capsulegraph.Get(ctx, b) + 1
	}, capsulegraph.WithName[int]("a"))
	b = capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int {
		return capsulegraph.Get(ctx, a) + 1
	}, capsulegraph.WithName[int]("b"))

	assert.Panics(t, func() {
		capsulegraph.Read(c, a)
	})
}

func TestDisposeStopsFurtherReads(t *testing.T) {
	c := capsulegraph.NewContainer()
	one := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int { return 1 })
	capsulegraph.Read(c, one)

	c.Dispose()
	c.Dispose() // idempotent

	assert.PanicsWithValue(t, capsulegraph.ErrContainerDisposed, func() {
		capsulegraph.Read(c, one)
	})
}

func TestEffectProtocolViolationPanics(t *testing.T) {
	c := capsulegraph.NewContainer()
	toggle := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) effects.State[bool] {
		return effects.UseState(ctx, false)
	})

	conditional := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int {
		if capsulegraph.Get(ctx, toggle).Value {
			capsulegraph.Register(ctx, func() int { return 0 })
		}
		return 1
	})

	capsulegraph.Read(c, conditional)

	// Set's trigger runs the rebuild pass synchronously, so the violation
	// raised while rebuilding conditional surfaces from Set itself.
	assert.Panics(t, func() {
		capsulegraph.Read(c, toggle).Set(true)
	}, "registering a different number of effects on a later build is a protocol violation")
}

func TestListenFiresImmediatelyAndOnChange(t *testing.T) {
	c := capsulegraph.NewContainer()
	count := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) effects.State[int] {
		return effects.UseState(ctx, 1)
	})

	var seen []int
	handle := capsulegraph.Listen(c, count, func(v effects.State[int]) {
		seen = append(seen, v.Value)
	})
	defer handle.Dispose()

	require.Len(t, seen, 1)
	assert.Equal(t, 1, seen[0])

	capsulegraph.Read(c, count).Set(2)
	require.Len(t, seen, 2)
	assert.Equal(t, 2, seen[1])
}

func TestWithTransactionBatchesRebuilds(t *testing.T) {
	c := capsulegraph.NewContainer()
	count := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) effects.State[int] {
		return effects.UseState(ctx, 0)
	})

	builds := 0
	derived := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int {
		builds++
		return capsulegraph.Get(ctx, count).Value
	})

	capsulegraph.Read(c, derived)
	builds = 0

	c.WithTransaction(func() {
		capsulegraph.Read(c, count).Set(1)
		capsulegraph.Read(c, count).Set(2)
		capsulegraph.Read(c, count).Set(3)
	})

	assert.Equal(t, 3, capsulegraph.Read(c, derived))
	assert.Equal(t, 1, builds, "batched sets inside a transaction trigger one rebuild pass")
}

func TestWithLoggerConfigWritesStructuredLogs(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "capsulegraph.log")

	c := capsulegraph.NewContainer(capsulegraph.WithLoggerConfig(obslog.Config{
		Level:    "debug",
		Format:   "json",
		Output:   "file",
		Filename: logPath,
	}))

	one := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int { return 1 })
	capsulegraph.Read(c, one)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "capsule built", "debug-level build diagnostics should reach the configured file writer")
}

func TestWithMetricsRecordsBuildsAndRebuilds(t *testing.T) {
	m := graphmetrics.New("capsulegraph_test")
	c := capsulegraph.NewContainer(capsulegraph.WithMetrics(m))

	count := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) effects.State[int] {
		return effects.UseState(ctx, 0)
	})
	derived := capsulegraph.NewCapsule(func(ctx *capsulegraph.Context) int {
		return capsulegraph.Get(ctx, count).Value + 1
	})

	capsulegraph.Read(c, derived)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BuildsTotal), "count and derived each built once")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.NodesActive))

	capsulegraph.Read(c, count).Set(5)
	capsulegraph.Read(c, derived)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.BuildsTotal), "count and derived each rebuilt once more")

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families, "metrics registered via WithMetrics should be gatherable from the container's own registry")
}
