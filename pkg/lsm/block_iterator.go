package lsm

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// BlockIterator walks the entries of a single Block in key order.
//
// Unlike mini-lsm-starter's block/iterator.rs, which implements
// seek_to_key by linear-scanning from the start of the block, SeekToKey here
// binary-searches the offset table: callers may rely on logarithmic time, as
// required by a block-based SST that expects O(log n) positioning within a
// block on every level of the read path.
type BlockIterator struct {
	block *Block
	idx   int
	key   []byte
	value []byte
}

// NewBlockIterator creates an iterator positioned before the first entry;
// call SeekToFirst or SeekToKey before use.
func NewBlockIterator(block *Block) *BlockIterator {
	return &BlockIterator{block: block, idx: -1}
}

// IsValid reports whether the iterator currently points at a live entry.
func (it *BlockIterator) IsValid() bool {
	return len(it.key) > 0
}

// Key returns the current entry's key. Only valid when IsValid.
func (it *BlockIterator) Key() []byte { return it.key }

// Value returns the current entry's value. Only valid when IsValid.
func (it *BlockIterator) Value() []byte { return it.value }

// SeekToFirst positions the iterator at the block's first entry.
func (it *BlockIterator) SeekToFirst() {
	it.seekTo(0)
}

// Next advances to the following entry, or becomes invalid at the end.
func (it *BlockIterator) Next() {
	it.seekTo(it.idx + 1)
}

// SeekToKey positions the iterator at the first entry whose key is >= key,
// or makes the iterator invalid if no such entry exists, via binary search
// over the block's offset table.
func (it *BlockIterator) SeekToKey(key []byte) {
	n := it.block.numEntries()
	pos := sort.Search(n, func(i int) bool {
		return bytes.Compare(it.extractKey(i), key) >= 0
	})
	it.seekTo(pos)
}

func (it *BlockIterator) seekTo(idx int) {
	if idx >= it.block.numEntries() {
		it.idx = idx
		it.key = nil
		it.value = nil
		return
	}
	it.idx = idx
	it.key = it.extractKey(idx)
	it.value = it.extractValue(idx)
}

func (it *BlockIterator) extractKey(idx int) []byte {
	off := int(it.block.offsets[idx])
	keyLen := int(binary.LittleEndian.Uint16(it.block.data[off:]))
	start := off + 2
	return it.block.data[start : start+keyLen]
}

func (it *BlockIterator) extractValue(idx int) []byte {
	off := int(it.block.offsets[idx])
	keyLen := int(binary.LittleEndian.Uint16(it.block.data[off:]))
	valOff := off + 2 + keyLen
	valLen := int(binary.LittleEndian.Uint16(it.block.data[valOff:]))
	start := valOff + 2
	return it.block.data[start : start+valLen]
}
