package syncer

import (
	"slices"
	"sync"

	"github.com/desertthunder/portalsync/internal/fence"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/tasks"
)

// Snapshot is a point-in-time copy of a [WorkingSet].
type Snapshot[T any] struct {
	Token     fence.Token
	Items     []T
	Loading   bool
	FromCache bool
	Completed int
	Total     int
	Label     string
	Err       string
	Dropped   int
}

// WorkingSet is the consumer-side view of a stream. It is safe for concurrent use.
type WorkingSet[T models.Item] struct {
	mu        sync.Mutex
	token     fence.Token
	retired   map[fence.Token]bool
	items     []T
	index     map[string]int
	loading   bool
	fromCache bool
	completed int
	total     int
	label     string
	err       string
	dropped   int
}

// NewWorkingSet creates an empty working set with no adopted token.
func NewWorkingSet[T models.Item]() *WorkingSet[T] {
	return &WorkingSet[T]{retired: make(map[fence.Token]bool), index: make(map[string]int)}
}

// Apply merges ev and reports whether it was accepted.
//
// Start markers adopt their token unless it was already superseded here. Every other
// event must carry the adopted token.
func (w *WorkingSet[T]) Apply(ev tasks.Event[T]) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch ev.Kind {
	case tasks.EventRefreshStart, tasks.EventStreamStart:
		if ev.Token == fence.NoToken || w.retired[ev.Token] {
			w.dropped++
			return false
		}
		w.adopt(ev.Token)
		if ev.Kind == tasks.EventRefreshStart {
			w.items = nil
			w.index = make(map[string]int)
			w.fromCache = false
		}
		return true
	}

	if ev.Token != w.token || w.token == fence.NoToken {
		w.dropped++
		return false
	}

	switch ev.Kind {
	case tasks.EventChunk:
		w.merge(ev.Items)
		w.fromCache = ev.FromCache
	case tasks.EventProgress:
		w.completed, w.total, w.label = ev.Completed, ev.Total, ev.Label
		w.fromCache = false
	case tasks.EventComplete:
		w.completed, w.total = ev.Completed, ev.Total
		w.loading = false
	case tasks.EventError:
		w.err = ev.Message
		w.loading = false
	}
	return true
}

// Reset forgets all data and tokens, e.g. after the session expired.
func (w *WorkingSet[T]) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.token != fence.NoToken {
		w.retired[w.token] = true
	}
	w.token = fence.NoToken
	w.items = nil
	w.index = make(map[string]int)
	w.loading, w.fromCache = false, false
	w.completed, w.total, w.label, w.err = 0, 0, "", ""
}

// Items returns a copy of the merged items in arrival order.
func (w *WorkingSet[T]) Items() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.items)
}

// Token is the adopted token.
func (w *WorkingSet[T]) Token() fence.Token {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.token
}

// Snapshot copies the current view.
func (w *WorkingSet[T]) Snapshot() Snapshot[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot[T]{
		Token:     w.token,
		Items:     slices.Clone(w.items),
		Loading:   w.loading,
		FromCache: w.fromCache,
		Completed: w.completed,
		Total:     w.total,
		Label:     w.label,
		Err:       w.err,
		Dropped:   w.dropped,
	}
}

func (w *WorkingSet[T]) adopt(tok fence.Token) {
	if w.token != fence.NoToken && w.token != tok {
		w.retired[w.token] = true
	}
	w.token = tok
	w.loading = true
	w.completed, w.total, w.label, w.err = 0, 0, "", ""
}

// merge appends new items and replaces ones already present with the same id.
func (w *WorkingSet[T]) merge(items []T) {
	for _, it := range items {
		id := it.ItemID()
		if i, ok := w.index[id]; ok {
			w.items[i] = it
			continue
		}
		w.index[id] = len(w.items)
		w.items = append(w.items, it)
	}
}
