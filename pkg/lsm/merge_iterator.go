package lsm

import (
	"bytes"
	"container/heap"
)

// MergeIterator merges N sorted StorageIterators into one sorted stream.
// When two sources share a key, the source with the smaller index wins
// (by convention, index 0 is the newest source, e.g. the active memtable),
// and the losing source's duplicate entry is silently skipped.
//
// Grounded on mini-lsm-starter's iterators/merge_iterator.rs HeapWrapper
// scheme, translated from Rust's reversed-max-heap-as-min-heap idiom to
// Go's container/heap with a direct Less.
type MergeIterator struct {
	h       *mergeHeap
	current *mergeHeapItem
}

type mergeHeapItem struct {
	idx  int
	iter StorageIterator
}

type mergeHeap []*mergeHeapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	c := bytes.Compare(h[i].iter.Key(), h[j].iter.Key())
	if c != 0 {
		return c < 0
	}
	return h[i].idx < h[j].idx
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*mergeHeapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// NewMergeIterator builds a MergeIterator over iters, in priority order
// (iters[0] is preferred on key ties).
func NewMergeIterator(iters []StorageIterator) (*MergeIterator, error) {
	h := &mergeHeap{}
	heap.Init(h)
	for i, it := range iters {
		if it.IsValid() {
			heap.Push(h, &mergeHeapItem{idx: i, iter: it})
		}
	}
	mi := &MergeIterator{h: h}
	if h.Len() > 0 {
		mi.current = heap.Pop(h).(*mergeHeapItem)
	}
	return mi, nil
}

// Key returns the current entry's key.
func (m *MergeIterator) Key() []byte {
	if m.current == nil {
		return nil
	}
	return m.current.iter.Key()
}

// Value returns the current entry's value.
func (m *MergeIterator) Value() []byte {
	if m.current == nil {
		return nil
	}
	return m.current.iter.Value()
}

// IsValid reports whether any source still has entries.
func (m *MergeIterator) IsValid() bool {
	return m.current != nil && m.current.iter.IsValid()
}

// Next advances past the current key, draining every other source
// positioned at the same key first (so equal keys from losing sources
// never resurface), then re-pushes the winning source if it still has
// data, and repops the new minimum.
func (m *MergeIterator) Next() error {
	if m.current == nil {
		return nil
	}
	key := append([]byte(nil), m.current.iter.Key()...)

	for m.h.Len() > 0 {
		top := (*m.h)[0]
		if !bytes.Equal(top.iter.Key(), key) {
			break
		}
		heap.Pop(m.h)
		if err := top.iter.Next(); err != nil {
			return err
		}
		if top.iter.IsValid() {
			heap.Push(m.h, top)
		}
	}

	if err := m.current.iter.Next(); err != nil {
		return err
	}
	if m.current.iter.IsValid() {
		heap.Push(m.h, m.current)
	}

	if m.h.Len() == 0 {
		m.current = nil
		return nil
	}
	m.current = heap.Pop(m.h).(*mergeHeapItem)
	return nil
}

// NumActiveIterators reports the number of sources still contributing,
// including the current one.
func (m *MergeIterator) NumActiveIterators() int {
	n := m.h.Len()
	if m.current != nil {
		n++
	}
	return n
}
