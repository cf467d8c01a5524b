// Package trace keeps a bounded ring of recent build/rebuild/GC events for
// postmortem inspection, adapted from the teacher service's
// internal/notification/template/cache.go TemplateCache: an
// github.com/hashicorp/golang-lru/v2 cache used as a fixed-capacity ring
// rather than as a reuse cache.
package trace

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Kind identifies what happened to a node.
type Kind string

const (
	KindBuilt      Kind = "built"
	KindRebuilt    Kind = "rebuilt"
	KindPruned     Kind = "pruned"
	KindGCRemoved  Kind = "gc_removed"
	KindDisposed   Kind = "disposed"
	KindCycle      Kind = "cycle"
	KindProtocol   Kind = "protocol_violation"
	KindListenFire Kind = "listener_fired"
)

// Event is a single recorded occurrence.
type Event struct {
	Seq    uint64
	Kind   Kind
	Node   string
	PassID string
	At     time.Time
}

// Buffer is a bounded, thread-safe ring of the most recent Events. A nil
// *Buffer is always valid to call Record on (a no-op), so tracing is
// entirely optional.
type Buffer struct {
	mu    sync.Mutex
	cache *lru.Cache[uint64, Event]
	seq   uint64
}

// NewBuffer creates a Buffer retaining at most capacity events.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	cache, err := lru.New[uint64, Event](capacity)
	if err != nil {
		// Only returned for a non-positive size, which we've just ruled out.
		panic(err)
	}
	return &Buffer{cache: cache}
}

// Record appends an event. Safe to call on a nil *Buffer.
func (b *Buffer) Record(kind Kind, node, passID string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.cache.Add(b.seq, Event{
		Seq:    b.seq,
		Kind:   kind,
		Node:   node,
		PassID: passID,
		At:     time.Now(),
	})
}

// Recent returns the retained events in ascending sequence order. Safe to
// call on a nil *Buffer (returns nil).
func (b *Buffer) Recent() []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := b.cache.Keys()
	events := make([]Event, 0, len(keys))
	for _, k := range keys {
		if ev, ok := b.cache.Peek(k); ok {
			events = append(events, ev)
		}
	}
	// lru.Cache.Keys() is already returned oldest-to-newest.
	return events
}
