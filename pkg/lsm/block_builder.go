package lsm

// BlockBuilder accumulates sorted key/value pairs into a single Block,
// refusing further entries once the encoded size would exceed blockSize.
//
// Grounded on mini-lsm's block/builder.rs: current_size tracks the encoded
// size without materializing it, and Add only rejects an entry once the
// block is non-empty (a block always holds at least one entry, even an
// oversized one, so a single huge value can never get stuck unbuildable).
type BlockBuilder struct {
	offsets   []uint16
	data      []byte
	blockSize int
	firstKey  []byte
}

// NewBlockBuilder creates a builder that targets blockSize bytes per block.
func NewBlockBuilder(blockSize int) *BlockBuilder {
	return &BlockBuilder{blockSize: blockSize}
}

// currentSize estimates the encoded size if built right now.
func (b *BlockBuilder) currentSize() int {
	return len(b.data) + 2*len(b.offsets) + 2
}

// IsEmpty reports whether any entry has been added yet.
func (b *BlockBuilder) IsEmpty() bool {
	return len(b.offsets) == 0
}

// Add appends a key/value pair. It returns false (without mutating the
// builder) when adding the entry would overflow blockSize and the block
// already holds at least one entry; callers should finish the current block
// and start a new one in that case.
func (b *BlockBuilder) Add(key, value []byte) bool {
	entrySize := 2 + len(key) + 2 + len(value)
	if !b.IsEmpty() && b.currentSize()+entrySize > b.blockSize {
		return false
	}

	b.offsets = append(b.offsets, uint16(len(b.data)))
	b.data = appendU16(b.data, uint16(len(key)))
	b.data = append(b.data, key...)
	b.data = appendU16(b.data, uint16(len(value)))
	b.data = append(b.data, value...)

	if b.firstKey == nil {
		b.firstKey = append([]byte(nil), key...)
	}
	return true
}

// Build finalizes the block. Calling Build on an empty builder produces an
// empty, valid (but not very useful) block.
func (b *BlockBuilder) Build() *Block {
	return &Block{
		data:    append([]byte(nil), b.data...),
		offsets: append([]uint16(nil), b.offsets...),
	}
}

func appendU16(dst []byte, v uint16) []byte {
	return append(dst, byte(v), byte(v>>8))
}
