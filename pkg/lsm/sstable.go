package lsm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync"
)

// BlockMeta describes one data block's position and key range within an
// SST, letting readers locate and binary-search blocks without decoding
// every block up front.
//
// Encoding (little-endian, matching the rest of this package's on-disk
// formats rather than mini-lsm-starter's table.rs native-endian block
// encoding): offset(u32) | first_key_len(u16) | first_key | last_key_len(u16) | last_key
type BlockMeta struct {
	Offset   uint32
	FirstKey []byte
	LastKey  []byte
}

func encodeBlockMetas(metas []BlockMeta) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(metas)))
	for _, m := range metas {
		buf = binary.LittleEndian.AppendUint32(buf, m.Offset)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.FirstKey)))
		buf = append(buf, m.FirstKey...)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.LastKey)))
		buf = append(buf, m.LastKey...)
	}
	return buf
}

func decodeBlockMetas(raw []byte) ([]BlockMeta, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: meta region too short", ErrCorruptSSTable)
	}
	count := int(binary.LittleEndian.Uint32(raw))
	raw = raw[4:]
	metas := make([]BlockMeta, 0, count)
	for i := 0; i < count; i++ {
		if len(raw) < 6 {
			return nil, fmt.Errorf("%w: truncated block meta", ErrCorruptSSTable)
		}
		offset := binary.LittleEndian.Uint32(raw)
		raw = raw[4:]
		firstLen := int(binary.LittleEndian.Uint16(raw))
		raw = raw[2:]
		if len(raw) < firstLen+2 {
			return nil, fmt.Errorf("%w: truncated block meta key", ErrCorruptSSTable)
		}
		firstKey := append([]byte(nil), raw[:firstLen]...)
		raw = raw[firstLen:]
		lastLen := int(binary.LittleEndian.Uint16(raw))
		raw = raw[2:]
		if len(raw) < lastLen {
			return nil, fmt.Errorf("%w: truncated block meta key", ErrCorruptSSTable)
		}
		lastKey := append([]byte(nil), raw[:lastLen]...)
		raw = raw[lastLen:]

		metas = append(metas, BlockMeta{Offset: offset, FirstKey: firstKey, LastKey: lastKey})
	}
	return metas, nil
}

// SSTable is an immutable, sorted, on-disk run of key/value entries split
// into fixed-size blocks, plus a bloom filter and per-block metadata.
//
// File layout (all integers little-endian):
//
//	[data blocks...] [block meta region] [meta_offset u32] [bloom region] [bloom_offset u32]
//
// bloom_offset is always the last 4 bytes of the file, mirroring
// mini-lsm-starter's table/builder.rs layout (which this package
// standardizes on little-endian throughout, per spec.md's resolution of
// the original's mixed native/little-endian encoding).
type SSTable struct {
	ID              uint64
	path            string
	mu              sync.Mutex
	file            *os.File
	fileSize        int64
	blockMeta       []BlockMeta
	blockMetaOffset uint32
	bloom           *BloomFilter
	firstKey        []byte
	lastKey         []byte
	cache           *BlockCache
}

// OpenSSTable opens an existing SST file, reading and validating its
// footer, block-meta region, and bloom filter.
func OpenSSTable(path string, id uint64, cache *BlockCache) (*SSTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lsm: open sstable: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("lsm: stat sstable: %w", err)
	}
	size := info.Size()
	if size < 8 {
		file.Close()
		return nil, fmt.Errorf("%w: file too short", ErrCorruptSSTable)
	}

	bloomOffset, err := readU32At(file, size-4)
	if err != nil {
		file.Close()
		return nil, err
	}
	if int64(bloomOffset) < 0 || int64(bloomOffset) > size-4 {
		file.Close()
		return nil, fmt.Errorf("%w: bloom offset out of range", ErrCorruptSSTable)
	}
	bloomRegion := make([]byte, size-4-int64(bloomOffset))
	if _, err := file.ReadAt(bloomRegion, int64(bloomOffset)); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: reading bloom region: %v", ErrCorruptSSTable, err)
	}
	bloom, err := DecodeBloomFilter(bloomRegion)
	if err != nil {
		file.Close()
		return nil, err
	}

	if int64(bloomOffset) < 4 {
		file.Close()
		return nil, fmt.Errorf("%w: missing meta offset", ErrCorruptSSTable)
	}
	metaOffset, err := readU32At(file, int64(bloomOffset)-4)
	if err != nil {
		file.Close()
		return nil, err
	}
	if int64(metaOffset) < 0 || int64(metaOffset) > int64(bloomOffset)-4 {
		file.Close()
		return nil, fmt.Errorf("%w: meta offset out of range", ErrCorruptSSTable)
	}
	metaRegion := make([]byte, int64(bloomOffset)-4-int64(metaOffset))
	if _, err := file.ReadAt(metaRegion, int64(metaOffset)); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: reading meta region: %v", ErrCorruptSSTable, err)
	}
	metas, err := decodeBlockMetas(metaRegion)
	if err != nil {
		file.Close()
		return nil, err
	}
	if len(metas) == 0 {
		file.Close()
		return nil, fmt.Errorf("%w: sstable has no blocks", ErrCorruptSSTable)
	}

	return &SSTable{
		ID:              id,
		path:            path,
		file:            file,
		fileSize:        size,
		blockMeta:       metas,
		blockMetaOffset: metaOffset,
		bloom:           bloom,
		firstKey:        metas[0].FirstKey,
		lastKey:         metas[len(metas)-1].LastKey,
		cache:           cache,
	}, nil
}

func readU32At(f *os.File, offset int64) (uint32, error) {
	var buf [4]byte
	if _, err := f.ReadAt(buf[:], offset); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptSSTable, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// FirstKey returns the smallest key stored in the SST.
func (s *SSTable) FirstKey() []byte { return s.firstKey }

// LastKey returns the largest key stored in the SST.
func (s *SSTable) LastKey() []byte { return s.lastKey }

// NumBlocks returns the number of data blocks in the SST.
func (s *SSTable) NumBlocks() int { return len(s.blockMeta) }

// MayContain reports whether key could be present, using the bloom filter
// and the overall key range as a fast pre-filter.
func (s *SSTable) MayContain(key []byte) bool {
	if bytes.Compare(key, s.firstKey) < 0 || bytes.Compare(key, s.lastKey) > 0 {
		return false
	}
	return s.bloom.MayContain(key)
}

// Overlaps reports whether the SST's key range intersects [lo, hi].
func (s *SSTable) Overlaps(lo, hi []byte) bool {
	if lo != nil && bytes.Compare(s.lastKey, lo) < 0 {
		return false
	}
	if hi != nil && bytes.Compare(s.firstKey, hi) > 0 {
		return false
	}
	return true
}

// findBlockIdx returns the index of the last block whose FirstKey <= key,
// via binary search (the block-based analogue of mini-lsm-starter's
// partition_point-based find_block_idx).
func (s *SSTable) findBlockIdx(key []byte) int {
	n := len(s.blockMeta)
	pos := sort.Search(n, func(i int) bool {
		return bytes.Compare(s.blockMeta[i].FirstKey, key) > 0
	})
	if pos == 0 {
		return 0
	}
	return pos - 1
}

// ReadBlock reads and decodes block idx directly from disk, bypassing the
// cache.
func (s *SSTable) ReadBlock(idx int) (*Block, error) {
	if idx < 0 || idx >= len(s.blockMeta) {
		return nil, fmt.Errorf("%w: block index %d out of range", ErrCorruptSSTable, idx)
	}
	start := int64(s.blockMeta[idx].Offset)
	var end int64
	if idx+1 < len(s.blockMeta) {
		end = int64(s.blockMeta[idx+1].Offset)
	} else {
		end = int64(s.blockMetaOffset)
	}

	s.mu.Lock()
	raw := make([]byte, end-start)
	_, err := s.file.ReadAt(raw, start)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: reading block %d: %v", ErrCorruptSSTable, idx, err)
	}
	return DecodeBlock(raw)
}

// ReadBlockCached reads block idx through the shared block cache.
func (s *SSTable) ReadBlockCached(idx int) (*Block, error) {
	if s.cache == nil {
		return s.ReadBlock(idx)
	}
	if block, ok := s.cache.Get(s.ID, idx); ok {
		return block, nil
	}
	block, err := s.ReadBlock(idx)
	if err != nil {
		return nil, err
	}
	s.cache.Put(s.ID, idx, block)
	return block, nil
}

// Close releases the underlying file handle.
func (s *SSTable) Close() error {
	if s.cache != nil {
		s.cache.InvalidateSST(s.ID)
	}
	return s.file.Close()
}

// Remove closes and deletes the SST file from disk.
func (s *SSTable) Remove() error {
	s.Close()
	return os.Remove(s.path)
}

// Size returns the on-disk file size in bytes.
func (s *SSTable) Size() int64 { return s.fileSize }

// Path returns the SST's file path.
func (s *SSTable) Path() string { return s.path }
