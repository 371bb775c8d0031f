package lsm

// LsmIteratorInner is the canonical merge tree used by the engine's Scan:
//
//	TwoMerge( TwoMerge( Merge(memtables), Merge(L0 ssts) ), Merge(Concat(level) for each level) )
//
// memtables (newest-first) and L0 ssts (newest-first) each merge via a
// MergeIterator; the two results overlay via a TwoMergeIterator with the
// memtable side winning ties. Each level's SSTs (non-overlapping within the
// level) are read by one SstConcatIterator, and those per-level iterators
// merge via a MergeIterator with the upper level winning ties; that merge
// is then overlaid beneath the memtable/L0 side the same way.
type LsmIteratorInner = TwoMergeIterator

// LsmIterator wraps LsmIteratorInner and skips tombstones (empty-value
// records) so callers of Scan never observe deleted keys.
//
// Grounded on mini-lsm-starter's lsm_iterator.rs move_to_non_delete loop.
type LsmIterator struct {
	inner *LsmIteratorInner
}

// NewLsmIterator wraps inner and positions past any leading tombstone.
func NewLsmIterator(inner *LsmIteratorInner) (*LsmIterator, error) {
	it := &LsmIterator{inner: inner}
	if err := it.skipDeleted(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *LsmIterator) skipDeleted() error {
	for it.inner.IsValid() && len(it.inner.Value()) == 0 {
		if err := it.inner.Next(); err != nil {
			return err
		}
	}
	return nil
}

// Key returns the current entry's key.
func (it *LsmIterator) Key() []byte { return it.inner.Key() }

// Value returns the current entry's value.
func (it *LsmIterator) Value() []byte { return it.inner.Value() }

// IsValid reports whether there is a live (non-tombstone) entry to read.
func (it *LsmIterator) IsValid() bool { return it.inner.IsValid() }

// Next advances to the following live entry, skipping any tombstones.
func (it *LsmIterator) Next() error {
	if err := it.inner.Next(); err != nil {
		return err
	}
	return it.skipDeleted()
}

// NumActiveIterators delegates to the wrapped merge tree.
func (it *LsmIterator) NumActiveIterators() int { return it.inner.NumActiveIterators() }

// FusedIterator wraps any StorageIterator and poisons itself permanently
// after the first error from Next, so callers cannot keep calling Next on
// an iterator in an undefined state.
//
// Grounded on mini-lsm-starter's lsm_iterator.rs FusedIterator.
type FusedIterator struct {
	iter       StorageIterator
	hasErrored bool
	err        error
}

// NewFusedIterator wraps iter.
func NewFusedIterator(iter StorageIterator) *FusedIterator {
	return &FusedIterator{iter: iter}
}

// IsValid reports false permanently once an error has occurred.
func (f *FusedIterator) IsValid() bool {
	return !f.hasErrored && f.iter.IsValid()
}

// Key returns the current entry's key.
func (f *FusedIterator) Key() []byte { return f.iter.Key() }

// Value returns the current entry's value.
func (f *FusedIterator) Value() []byte { return f.iter.Value() }

// Next advances the wrapped iterator. Once poisoned, Next immediately
// returns the original error on every subsequent call, per the
// fused-iterator contract; if the wrapped iterator is simply exhausted (no
// error), Next is a harmless no-op.
func (f *FusedIterator) Next() error {
	if f.hasErrored {
		return f.err
	}
	if !f.iter.IsValid() {
		return nil
	}
	if err := f.iter.Next(); err != nil {
		f.hasErrored = true
		f.err = err
		return err
	}
	return nil
}

// NumActiveIterators delegates to the wrapped iterator.
func (f *FusedIterator) NumActiveIterators() int { return f.iter.NumActiveIterators() }
