package lsm

import "bytes"

// TwoMergeIterator overlays two sorted sources, A and B, where A is the
// newer/higher-priority side: on matching keys, A's value is yielded and
// both sides are advanced past the duplicate.
//
// Grounded on mini-lsm-starter's iterators/two_merge_iterator.rs.
type TwoMergeIterator struct {
	a StorageIterator
	b StorageIterator
}

// NewTwoMergeIterator builds a TwoMergeIterator favoring a over b.
func NewTwoMergeIterator(a, b StorageIterator) *TwoMergeIterator {
	return &TwoMergeIterator{a: a, b: b}
}

func (m *TwoMergeIterator) chooseA() bool {
	if !m.b.IsValid() {
		return true
	}
	if !m.a.IsValid() {
		return false
	}
	return bytes.Compare(m.a.Key(), m.b.Key()) <= 0
}

// Key returns the current entry's key.
func (m *TwoMergeIterator) Key() []byte {
	if m.chooseA() {
		return m.a.Key()
	}
	return m.b.Key()
}

// Value returns the current entry's value.
func (m *TwoMergeIterator) Value() []byte {
	if m.chooseA() {
		return m.a.Value()
	}
	return m.b.Value()
}

// IsValid reports whether either side still has entries.
func (m *TwoMergeIterator) IsValid() bool {
	return m.a.IsValid() || m.b.IsValid()
}

// Next advances past the current entry. If both sides are valid and share
// the current key, both are advanced so B's stale duplicate never
// resurfaces.
func (m *TwoMergeIterator) Next() error {
	aValid, bValid := m.a.IsValid(), m.b.IsValid()
	switch {
	case aValid && bValid:
		c := bytes.Compare(m.a.Key(), m.b.Key())
		if c == 0 {
			if err := m.a.Next(); err != nil {
				return err
			}
			return m.b.Next()
		}
		if c < 0 {
			return m.a.Next()
		}
		return m.b.Next()
	case aValid:
		return m.a.Next()
	case bValid:
		return m.b.Next()
	default:
		return nil
	}
}

// NumActiveIterators sums both sides' active iterator counts.
func (m *TwoMergeIterator) NumActiveIterators() int {
	return m.a.NumActiveIterators() + m.b.NumActiveIterators()
}
