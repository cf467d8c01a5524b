package capsulegraph

import (
	"time"

	"github.com/vitaliisemenov/capsulegraph/internal/trace"
)

// computeRebuildSet returns the seed nodes plus every node transitively
// reachable from them via dependent edges (spec §4.5): exactly the set
// of nodes a rebuild pass might need to touch. Seeds that no longer
// exist (e.g. garbage collected between the trigger firing and the pass
// running) are silently dropped.
func (c *Container) computeRebuildSet(seeds map[id]struct{}) map[id]struct{} {
	set := make(map[id]struct{}, len(seeds))
	queue := make([]id, 0, len(seeds))
	for s := range seeds {
		if _, ok := c.nodes[s]; !ok {
			continue
		}
		set[s] = struct{}{}
		queue = append(queue, s)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := c.nodes[cur]
		for dependent := range n.dependents {
			if _, already := set[dependent]; already {
				continue
			}
			set[dependent] = struct{}{}
			queue = append(queue, dependent)
		}
	}
	return set
}

// topoOrder returns set's members in an order where every node appears
// after all of its dependencies that are also in set (Kahn's algorithm,
// restricted to the subgraph induced by set). The live graph never
// contains a dependency cycle, so every member of set is guaranteed to
// appear exactly once in the result.
func (c *Container) topoOrder(set map[id]struct{}) []id {
	indegree := make(map[id]int, len(set))
	for nid := range set {
		n := c.nodes[nid]
		count := 0
		for dep := range n.dependencies {
			if _, inSet := set[dep]; inSet {
				count++
			}
		}
		indegree[nid] = count
	}

	queue := make([]id, 0, len(set))
	for nid, deg := range indegree {
		if deg == 0 {
			queue = append(queue, nid)
		}
	}

	order := make([]id, 0, len(set))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		n := c.nodes[cur]
		for dependent := range n.dependents {
			if _, inSet := set[dependent]; !inSet {
				continue
			}
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	return order
}

// runRebuildPass is the entry point for every rebuild triggered by a
// side effect (spec §4.5): it computes the rebuild set reachable from
// seeds, walks it in topological order, and rebuilds a node only if it
// is itself a seed or at least one of its in-set dependencies changed
// value this pass. A node whose in-set dependencies all kept their
// previous (equal) value is pruned: it is not built and counts as
// unchanged for its own dependents, which are judged by the same rule.
// This forward propagation implements spec §4.5 step 8
// — a naive "prune every transitive dependent of an unchanged node"
// would be wrong whenever a pruned node shares a dependent with a node
// that did change. Called with the write lock already held.
func (c *Container) runRebuildPass(seeds map[id]struct{}) {
	start := time.Now()
	passID := newPassID()

	set := c.computeRebuildSet(seeds)
	if len(set) == 0 {
		return
	}
	order := c.topoOrder(set)

	changed := make(map[id]bool, len(set))
	built := 0

	for _, nid := range order {
		n := c.nodes[nid]
		_, isSeed := seeds[nid]

		needsBuild := isSeed
		if !needsBuild {
			for dep := range n.dependencies {
				if _, inSet := set[dep]; inSet && changed[dep] {
					needsBuild = true
					break
				}
			}
		}

		if !needsBuild {
			changed[nid] = false
			c.tracer.Record(trace.KindPruned, n.ref.label(), passID)
			continue
		}

		changed[nid] = c.buildNode(nid, n, passID)
		built++
	}

	if c.metrics != nil {
		c.metrics.RebuildPassDuration.Observe(time.Since(start).Seconds())
		c.metrics.RebuildPassNodesBuilt.Observe(float64(built))
	}
}
