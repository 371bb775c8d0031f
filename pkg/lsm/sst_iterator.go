package lsm

// SSTableIterator walks one SST's entries in key order, transparently
// crossing block boundaries through the shared block cache.
//
// Grounded on mini-lsm-starter's table/iterator.rs.
type SSTableIterator struct {
	table   *SSTable
	blkIter *BlockIterator
	blkIdx  int
}

// NewSSTableIterator creates an iterator positioned at the SST's first key.
func NewSSTableIterator(table *SSTable) (*SSTableIterator, error) {
	it := &SSTableIterator{table: table}
	if err := it.seekToFirst(); err != nil {
		return nil, err
	}
	return it, nil
}

// NewSSTableIteratorSeek creates an iterator positioned at the first key
// within table that is >= key.
func NewSSTableIteratorSeek(table *SSTable, key []byte) (*SSTableIterator, error) {
	it := &SSTableIterator{table: table}
	if err := it.seekToKey(key); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *SSTableIterator) loadBlock(idx int) error {
	block, err := it.table.ReadBlockCached(idx)
	if err != nil {
		return err
	}
	it.blkIdx = idx
	it.blkIter = NewBlockIterator(block)
	it.blkIter.SeekToFirst()
	return nil
}

func (it *SSTableIterator) seekToFirst() error {
	return it.loadBlock(0)
}

func (it *SSTableIterator) seekToKey(key []byte) error {
	idx := it.table.findBlockIdx(key)
	if err := it.loadBlock(idx); err != nil {
		return err
	}
	it.blkIter.SeekToKey(key)
	if !it.blkIter.IsValid() && idx+1 < it.table.NumBlocks() {
		return it.loadBlock(idx + 1)
	}
	return nil
}

// Key returns the current entry's key.
func (it *SSTableIterator) Key() []byte { return it.blkIter.Key() }

// Value returns the current entry's value.
func (it *SSTableIterator) Value() []byte { return it.blkIter.Value() }

// IsValid reports whether the iterator still has more entries to read.
func (it *SSTableIterator) IsValid() bool {
	return it.blkIdx < it.table.NumBlocks() && it.blkIter.IsValid()
}

// Next advances to the following entry, loading the next block if the
// current one is exhausted.
func (it *SSTableIterator) Next() error {
	it.blkIter.Next()
	if !it.blkIter.IsValid() {
		if it.blkIdx+1 >= it.table.NumBlocks() {
			it.blkIdx = it.table.NumBlocks()
			return nil
		}
		return it.loadBlock(it.blkIdx + 1)
	}
	return nil
}

// NumActiveIterators always reports 1 for a leaf SST iterator.
func (it *SSTableIterator) NumActiveIterators() int { return 1 }
