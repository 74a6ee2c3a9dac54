// Package dedupe tracks submitted event ids so a retried submission is not
// applied twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"

	"github.com/okian/tastegraph/pkg/metrics"
)

// Deduper records seen event ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it if
	// not. The check and the write happen under one lock.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so the same submission can be retried, e.g. after
	// the queue rejected it.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// window keeps the most recent ids in insertion order. When full, the oldest id
// is evicted; a maxSize of zero or less disables eviction.
type window struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates an in-memory Deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	w := &window{maxSize: 100_000}
	for _, opt := range opts {
		opt(w)
	}
	w.seen = make(map[string]*list.Element)
	w.order = list.New()
	return w
}

func (w *window) SeenAndRecord(_ context.Context, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[id]; ok {
		metrics.RecordEventDuplicate()
		return true
	}
	if w.maxSize > 0 && w.order.Len() >= w.maxSize {
		oldest := w.order.Front()
		w.order.Remove(oldest)
		delete(w.seen, oldest.Value.(string))
	}
	w.seen[id] = w.order.PushBack(id)
	return false
}

func (w *window) Unrecord(_ context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if el, ok := w.seen[id]; ok {
		w.order.Remove(el)
		delete(w.seen, id)
	}
}

func (w *window) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(w.order.Len())
}
