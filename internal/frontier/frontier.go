// Package frontier holds the queue of URLs pending fetch. URLs are
// deduplicated by canonical key, so the queue combined with depth tagging
// yields breadth-first traversal order.
package frontier

import "sitecrawler/pkg/types"

// Frontier is a FIFO queue of fetch tasks with canonical-key deduplication.
// It is not safe for concurrent use; the orchestrator owns it exclusively.
type Frontier struct {
	queue []types.FrontierItem
	// seen maps canonical key to the depth at which the URL was first
	// enqueued. A key is inserted at most once: rediscovering a URL at a
	// shallower depth does not re-enqueue or promote it.
	seen map[string]int
}

// New returns an empty frontier.
func New() *Frontier {
	return &Frontier{seen: make(map[string]int)}
}

// Push enqueues a URL at the given depth unless its canonical key has been
// seen before. It reports whether the URL was enqueued.
func (f *Frontier) Push(rawURL string, depth int, metadata map[string]string) bool {
	key := Canonicalize(rawURL)
	if _, ok := f.seen[key]; ok {
		return false
	}
	f.seen[key] = depth
	if metadata == nil {
		metadata = map[string]string{}
	}
	f.queue = append(f.queue, types.FrontierItem{
		URL:      rawURL,
		Depth:    depth,
		Metadata: metadata,
	})
	return true
}

// Pop removes and returns the head of the queue. The second return value is
// false when the queue is empty.
func (f *Frontier) Pop() (types.FrontierItem, bool) {
	if len(f.queue) == 0 {
		return types.FrontierItem{}, false
	}
	item := f.queue[0]
	f.queue = f.queue[1:]
	return item, true
}

// HasSeen reports whether a URL's canonical key has already been enqueued.
func (f *Frontier) HasSeen(rawURL string) bool {
	_, ok := f.seen[Canonicalize(rawURL)]
	return ok
}

// SeenDepth returns the depth at which a URL was first enqueued.
func (f *Frontier) SeenDepth(rawURL string) (int, bool) {
	depth, ok := f.seen[Canonicalize(rawURL)]
	return depth, ok
}

// Size returns the number of items waiting in the queue.
func (f *Frontier) Size() int { return len(f.queue) }

// IsEmpty reports whether the queue is empty.
func (f *Frontier) IsEmpty() bool { return len(f.queue) == 0 }

// SeenCount returns the number of unique URLs ever enqueued, including
// those already popped.
func (f *Frontier) SeenCount() int { return len(f.seen) }

// Clear resets the queue and the seen set.
func (f *Frontier) Clear() {
	f.queue = nil
	f.seen = make(map[string]int)
}
