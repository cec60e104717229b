// Package rotation provides a shared cyclic cursor over a fixed list.
//
// Increments are atomic but reads of the list order are not coordinated, so concurrent callers
// get an approximately fair distribution rather than a strict round robin.
package rotation

import "sync/atomic"

type Ring[T any] struct {
	items  []T
	cursor atomic.Uint64
}

// New panics on an empty list; every ring is built from a fixed, non-empty set.
func New[T any](items ...T) *Ring[T] {
	if len(items) == 0 {
		panic("rotation: empty ring")
	}
	return &Ring[T]{items: append([]T(nil), items...)}
}

// Next returns the item at the cursor and advances it.
func (r *Ring[T]) Next() T {
	pos := r.cursor.Add(1) - 1
	return r.items[pos%uint64(len(r.items))]
}

// Cycle returns every item exactly once, starting at the cursor, and advances the cursor by one.
func (r *Ring[T]) Cycle() []T {
	start := (r.cursor.Add(1) - 1) % uint64(len(r.items))
	out := make([]T, 0, len(r.items))
	for i := range uint64(len(r.items)) {
		out = append(out, r.items[(start+i)%uint64(len(r.items))])
	}
	return out
}

func (r *Ring[T]) Len() int {
	return len(r.items)
}
