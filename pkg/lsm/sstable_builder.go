package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// SSTableBuilder assembles sorted key/value pairs into blocks and, on
// Finish, writes a complete SST file: data blocks, block-meta region,
// bloom filter, and the two trailing offsets that let OpenSSTable locate
// them.
//
// Grounded on mini-lsm-starter's table/builder.rs (block accumulation,
// meta tracking, bloom-bits-per-key sizing) and the reference engine's
// sstable_builder.go (bufio.Writer usage, block-size-exceeded flush
// logic).
type SSTableBuilder struct {
	builder   *BlockBuilder
	blockSize int
	firstKey  []byte
	lastKey   []byte
	data      []byte
	meta      []BlockMeta
	keys      [][]byte
}

// NewSSTableBuilder creates a builder targeting blockSize bytes per block.
func NewSSTableBuilder(blockSize int) *SSTableBuilder {
	return &SSTableBuilder{
		builder:   NewBlockBuilder(blockSize),
		blockSize: blockSize,
	}
}

// EstimatedSize returns the number of bytes written to completed blocks so
// far, used by callers deciding when to roll over to a new SST file.
func (b *SSTableBuilder) EstimatedSize() int {
	return len(b.data)
}

// Add appends one key/value pair, flushing the in-progress block first if
// it is full.
func (b *SSTableBuilder) Add(key, value []byte) {
	if b.firstKey == nil {
		b.firstKey = append([]byte(nil), key...)
	}

	if !b.builder.Add(key, value) {
		b.finishBlock()
		b.builder.Add(key, value)
		b.firstKey = append([]byte(nil), key...)
	}

	b.lastKey = append([]byte(nil), key...)
	b.keys = append(b.keys, append([]byte(nil), key...))
}

func (b *SSTableBuilder) finishBlock() {
	if b.builder.IsEmpty() {
		return
	}
	block := b.builder.Build()
	meta := BlockMeta{
		Offset:   uint32(len(b.data)),
		FirstKey: b.firstKey,
		LastKey:  b.lastKey,
	}
	b.meta = append(b.meta, meta)
	b.data = append(b.data, block.Encode()...)
	b.builder = NewBlockBuilder(b.blockSize)
}

// Finish flushes any pending block and writes the complete SST file to
// path under the given id, returning an opened handle to it.
func (b *SSTableBuilder) Finish(id uint64, path string, bloomFPRate float64, cache *BlockCache) (*SSTable, error) {
	b.finishBlock()
	if len(b.meta) == 0 {
		return nil, fmt.Errorf("lsm: cannot build an empty sstable")
	}

	bitsPerKey := BitsPerKeyForFalsePositiveRate(bloomFPRate)
	bloom := NewBloomFilter(len(b.keys), bitsPerKey)
	for _, k := range b.keys {
		bloom.Add(k)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("lsm: create sstable: %w", err)
	}
	w := bufio.NewWriter(file)

	if _, err := w.Write(b.data); err != nil {
		file.Close()
		return nil, fmt.Errorf("lsm: write sstable data: %w", err)
	}

	metaOffset := uint32(len(b.data))
	metaBytes := encodeBlockMetas(b.meta)
	if _, err := w.Write(metaBytes); err != nil {
		file.Close()
		return nil, fmt.Errorf("lsm: write sstable meta: %w", err)
	}

	bloomOffset := metaOffset + uint32(len(metaBytes)) + 4
	if err := writeU32(w, metaOffset); err != nil {
		file.Close()
		return nil, err
	}

	bloomBytes := bloom.Encode()
	if _, err := w.Write(bloomBytes); err != nil {
		file.Close()
		return nil, fmt.Errorf("lsm: write sstable bloom: %w", err)
	}
	if err := writeU32(w, bloomOffset); err != nil {
		file.Close()
		return nil, err
	}

	if err := w.Flush(); err != nil {
		file.Close()
		return nil, fmt.Errorf("lsm: flush sstable: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("lsm: sync sstable: %w", err)
	}
	file.Close()

	return OpenSSTable(path, id, cache)
}

func writeU32(w *bufio.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("lsm: write sstable trailer: %w", err)
	}
	return nil
}

// newSSTableID derives a file-scoped SST identifier from a UUID's first 8 bytes,
// replacing the reference engine's time.Now().UnixNano() naming scheme
// (which can collide when flush and compaction both mint IDs within the
// same nanosecond-granularity tick under CI load).
func newSSTableID() uint64 {
	id := uuid.New()
	return binary.LittleEndian.Uint64(id[:8])
}
