package capsulegraph

import "github.com/vitaliisemenov/capsulegraph/internal/trace"

// drainGC runs garbage collection starting from the node ids
// accumulated in c.gcFrontier since the last call (every dependency
// edge removed during the pass that just finished), then clears the
// frontier. Called once, at the end of whichever entry point holds the
// write lock for a build or rebuild pass.
func (c *Container) drainGC() {
	if len(c.gcFrontier) == 0 {
		return
	}
	frontier := c.gcFrontier
	c.gcFrontier = nil
	c.runGC(frontier)
}

// runGC is a fixed-point BFS over candidate nodes (spec §4.6): a node is
// removed only if it is super-pure (registered no side effects on its
// last build), has no remaining dependents, and has no attached
// listener. Removing a node can itself orphan its own dependencies, so
// each removal re-queues them as new candidates until the frontier runs
// dry.
func (c *Container) runGC(frontier []id) {
	queue := append([]id(nil), frontier...)

	for len(queue) > 0 {
		nid := queue[0]
		queue = queue[1:]

		n, ok := c.nodes[nid]
		if !ok || !n.isGarbage() {
			continue
		}

		for dep := range n.dependencies {
			if dn, ok := c.nodes[dep]; ok {
				delete(dn.dependents, nid)
				queue = append(queue, dep)
			}
		}

		n.disposeEffects()
		delete(c.nodes, nid)
		delete(c.listeners, nid)

		if c.metrics != nil {
			c.metrics.GCRemovedTotal.Inc()
			c.metrics.NodesActive.Set(float64(len(c.nodes)))
		}
		c.tracer.Record(trace.KindGCRemoved, n.ref.label(), "")
		c.logger.Debug("capsule garbage collected", "capsule", n.ref.label())
	}
}
