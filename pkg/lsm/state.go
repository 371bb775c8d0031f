package lsm

// StorageState is an immutable-by-convention snapshot of everything the
// engine needs to answer a read: the active memtable, frozen (immutable)
// memtables awaiting flush, L0 SST ids, per-level SST ids above L0, and the
// id-to-table lookup.
//
// Readers take a reference to the current *StorageState under state's
// RWMutex and then read through it without holding the lock: nothing ever
// mutates a StorageState in place. A writer (freeze, flush or compaction)
// constructs a new StorageState with clone and swaps the Engine's pointer
// to it under both stateLock (serializing writers against each other) and
// state's write lock (excluding readers during the pointer swap itself).
// State's write lock is held only for the swap. stateLock is held for the
// whole freeze, flush or compaction, including the SST I/O that produces
// the new state, so a flush waits for a running compaction and vice versa.
type StorageState struct {
	// Memtable is the current mutable memtable accepting writes.
	Memtable Memtable

	// ImmMemtables holds frozen memtables waiting to be flushed, ordered
	// newest-first (index 0 was frozen most recently).
	ImmMemtables []Memtable

	// L0SSTables holds L0 SST ids, ordered newest-first.
	L0SSTables []uint64

	// Levels holds L1..Ln SST ids. Levels[0] is L1. Within a level, ids are
	// ordered by ascending key range (non-overlapping, concatenation-safe).
	Levels [][]uint64

	// SSTables maps an SST id to its open handle, for every id referenced
	// anywhere above.
	SSTables map[uint64]*SSTable
}

// newEmptyStorageState returns the state of a freshly opened, empty engine.
func newEmptyStorageState(numLevels int) *StorageState {
	return &StorageState{
		Memtable: NewMemtable(),
		Levels:   make([][]uint64, numLevels),
		SSTables: make(map[uint64]*SSTable),
	}
}

// clone returns a copy whose id slices (L0SSTables and every level),
// ImmMemtables slice and SSTables map are freshly allocated, so changing
// them never touches the original snapshot; element values (SSTable
// pointers, Memtable handles) are shared.
func (s *StorageState) clone() *StorageState {
	next := &StorageState{
		Memtable:     s.Memtable,
		ImmMemtables: append([]Memtable(nil), s.ImmMemtables...),
		L0SSTables:   append([]uint64(nil), s.L0SSTables...),
		Levels:       make([][]uint64, len(s.Levels)),
		SSTables:     make(map[uint64]*SSTable, len(s.SSTables)),
	}
	for i, lvl := range s.Levels {
		next.Levels[i] = append([]uint64(nil), lvl...)
	}
	for id, sst := range s.SSTables {
		next.SSTables[id] = sst
	}
	return next
}

// l0Tables returns the SSTs referenced by L0SSTables, newest first.
func (s *StorageState) l0Tables() []*SSTable {
	tables := make([]*SSTable, 0, len(s.L0SSTables))
	for _, id := range s.L0SSTables {
		tables = append(tables, s.SSTables[id])
	}
	return tables
}

func (s *StorageState) levelTables(level int) []*SSTable {
	ids := s.Levels[level]
	tables := make([]*SSTable, 0, len(ids))
	for _, id := range ids {
		tables = append(tables, s.SSTables[id])
	}
	return tables
}
