package lsm

import (
	"encoding/binary"
	"fmt"
)

// Block is the smallest unit of data persisted to and read from an SST.
// Layout on disk/in memory: a run of entries, each
// key_len(u16 LE) | key | value_len(u16 LE) | value
// followed by one u16 LE offset per entry (into the start of the entry
// stream) and a trailing u16 LE entry count.
//
// Encoding is little-endian throughout, including on the entry stream, so
// that an encoded Block is portable across architectures.
type Block struct {
	data    []byte
	offsets []uint16
}

// Encode serializes the block to its on-disk byte representation.
func (b *Block) Encode() []byte {
	buf := make([]byte, 0, len(b.data)+2*len(b.offsets)+2)
	buf = append(buf, b.data...)
	for _, off := range b.offsets {
		buf = binary.LittleEndian.AppendUint16(buf, off)
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(b.offsets)))
	return buf
}

// DecodeBlock parses an on-disk block. It validates the trailing count and
// offset table bounds before trusting them.
func DecodeBlock(raw []byte) (*Block, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: block shorter than trailer", ErrCorruptBlock)
	}
	numEntries := int(binary.LittleEndian.Uint16(raw[len(raw)-2:]))
	offsetsSize := numEntries * 2
	offsetsEnd := len(raw) - 2
	offsetsStart := offsetsEnd - offsetsSize
	if offsetsStart < 0 {
		return nil, fmt.Errorf("%w: offset table overruns block", ErrCorruptBlock)
	}

	offsets := make([]uint16, numEntries)
	for i := 0; i < numEntries; i++ {
		offsets[i] = binary.LittleEndian.Uint16(raw[offsetsStart+i*2:])
	}
	return &Block{
		data:    append([]byte(nil), raw[:offsetsStart]...),
		offsets: offsets,
	}, nil
}

func (b *Block) numEntries() int {
	return len(b.offsets)
}
