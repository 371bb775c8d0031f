package lsm

// StorageIterator is the common contract across every iterator in the
// family: block, SST, merge, two-merge, concat, fused, and the top-level
// LSM iterator. Key/Value are only meaningful while IsValid is true.
type StorageIterator interface {
	Key() []byte
	Value() []byte
	IsValid() bool
	// Next advances the iterator. It returns an error if the underlying
	// storage could not be read (e.g. a corrupt block); after an error the
	// iterator must be treated as invalid.
	Next() error
	// NumActiveIterators reports how many underlying iterators are still
	// contributing to this one, for diagnostics and tests.
	NumActiveIterators() int
}
