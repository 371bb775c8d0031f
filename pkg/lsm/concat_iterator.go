package lsm

import (
	"bytes"
	"sort"
)

// SstConcatIterator iterates a set of SSTs known to have non-overlapping,
// already-sorted key ranges (true of every level above L0), without a
// merge heap: it simply walks the tables in order, moving to the next
// table's iterator once the current one is exhausted.
//
// Grounded on mini-lsm-starter's iterators/concat_iterator.rs.
type SstConcatIterator struct {
	current    *SSTableIterator
	nextSSTIdx int
	tables     []*SSTable
}

// NewSstConcatIterator creates an iterator over tables positioned at the
// first key of the first table.
func NewSstConcatIterator(tables []*SSTable) (*SstConcatIterator, error) {
	it := &SstConcatIterator{tables: tables}
	if len(tables) == 0 {
		return it, nil
	}
	cur, err := NewSSTableIterator(tables[0])
	if err != nil {
		return nil, err
	}
	it.current = cur
	it.nextSSTIdx = 1
	if err := it.skipInvalid(); err != nil {
		return nil, err
	}
	return it, nil
}

// NewSstConcatIteratorSeek creates an iterator positioned at the first key
// across tables that is >= key, via binary search over each table's
// FirstKey followed by a seek within that table.
func NewSstConcatIteratorSeek(tables []*SSTable, key []byte) (*SstConcatIterator, error) {
	idx := sort.Search(len(tables), func(i int) bool {
		return bytes.Compare(tables[i].FirstKey(), key) > 0
	})
	if idx > 0 {
		idx--
	}
	it := &SstConcatIterator{tables: tables}
	if len(tables) == 0 {
		return it, nil
	}
	cur, err := NewSSTableIteratorSeek(tables[idx], key)
	if err != nil {
		return nil, err
	}
	it.current = cur
	it.nextSSTIdx = idx + 1
	if err := it.skipInvalid(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *SstConcatIterator) skipInvalid() error {
	for it.current != nil && !it.current.IsValid() {
		if it.nextSSTIdx >= len(it.tables) {
			it.current = nil
			return nil
		}
		cur, err := NewSSTableIterator(it.tables[it.nextSSTIdx])
		if err != nil {
			return err
		}
		it.current = cur
		it.nextSSTIdx++
	}
	return nil
}

// Key returns the current entry's key.
func (it *SstConcatIterator) Key() []byte { return it.current.Key() }

// Value returns the current entry's value.
func (it *SstConcatIterator) Value() []byte { return it.current.Value() }

// IsValid reports whether any entries remain.
func (it *SstConcatIterator) IsValid() bool {
	return it.current != nil && it.current.IsValid()
}

// Next advances to the next entry, crossing into the next table if needed.
func (it *SstConcatIterator) Next() error {
	if it.current == nil {
		return nil
	}
	if err := it.current.Next(); err != nil {
		return err
	}
	return it.skipInvalid()
}

// NumActiveIterators always reports 1: only one table is ever open at a time.
func (it *SstConcatIterator) NumActiveIterators() int { return 1 }
