package lsm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dd0wney/lsmkv/pkg/logging"
)

// Engine is the top-level LSM storage engine: it owns a StorageState
// snapshot, a background flush worker, a background compaction worker, and
// the write-ahead log backing the active memtable.
//
// Grounded on the reference engine's lsm.go/lsm_workers.go for the overall
// shape (copy-on-write state swaps, ticker-driven workers signaled by a
// non-blocking trigger channel), generalized from a single hardcoded
// LeveledCompactionStrategy to the three interchangeable
// CompactionController implementations spec.md calls for.
type Engine struct {
	opts Options

	stateMu sync.RWMutex
	state   *StorageState

	// stateLock serializes writers (freeze, flush, compaction) against each
	// other; stateMu's write lock is only ever held for the brief pointer
	// swap itself, never for the I/O that produces the new state.
	stateLock sync.Mutex

	controller CompactionController

	cache   *BlockCache
	metrics *Metrics
	logger  logging.Logger

	wal     WriteAheadLog
	immWALs []WriteAheadLog
	walGen  atomic.Uint64
	tierGen atomic.Uint64

	flushChan      chan struct{}
	compactionChan chan struct{}
	doneChan       chan struct{}
	wg             sync.WaitGroup

	closed atomic.Bool

	compactingForce sync.Mutex
}

var sstFileRE = regexp.MustCompile(`^L(\d+)-([0-9a-fA-F]+)\.sst$`)
var tierFileRE = regexp.MustCompile(`^T(\d+)-([0-9a-fA-F]+)\.sst$`)
var immWALRE = regexp.MustCompile(`^memtable-imm-(\d+)\.wal$`)

// Open creates or recovers an Engine rooted at opts.DataDir. logger and reg
// may be nil (a NopLogger is used, and metrics are disabled, respectively).
func Open(opts Options, logger logging.Logger, reg prometheus.Registerer) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("lsm: create data dir: %w", err)
	}

	cache := NewBlockCache(opts.BlockCacheCapacity)

	state, maxTierGen, err := recoverStorageState(opts, cache)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:           opts,
		state:          state,
		controller:     newController(opts),
		cache:          cache,
		logger:         logger.With(logging.Component("engine")),
		flushChan:      make(chan struct{}, 1),
		compactionChan: make(chan struct{}, 1),
		doneChan:       make(chan struct{}),
	}
	e.tierGen.Store(maxTierGen)
	if reg != nil {
		e.metrics = NewMetrics(reg)
	}

	if opts.EnableWAL {
		if err := e.recoverWALs(state); err != nil {
			return nil, err
		}
	}

	e.wg.Add(2)
	go e.flushWorker()
	go e.compactionWorker()

	return e, nil
}

func newController(opts Options) CompactionController {
	switch opts.CompactionStrategy {
	case CompactionSimpleLeveled:
		return NewSimpleLeveledController(opts.SimpleLeveled)
	case CompactionTiered:
		return NewTieredController(opts.Tiered)
	default:
		return NewLeveledController(opts.Leveled)
	}
}

func (e *Engine) isTiered() bool { return e.opts.CompactionStrategy == CompactionTiered }

func maxFixedLevels(opts Options) int {
	switch opts.CompactionStrategy {
	case CompactionSimpleLeveled:
		return int(opts.SimpleLeveled.MaxLevels)
	case CompactionLeveled:
		return int(opts.Leveled.MaxLevels)
	default:
		return 0
	}
}

// recoverStorageState rebuilds a StorageState from on-disk SST files.
// SimpleLeveled/Leveled name files "L<level>-<id>.sst" with a stable
// per-level meaning, so recovery groups directly by the embedded level
// number. Tiered names files "T<gen>-<id>.sst": tier indices are not
// stable across compactions (merging tiers 3..5 collapses them into the
// position of tier 3), but creation order is, so tiers are reconstructed
// by sorting groups by generation descending (newest first) instead.
func recoverStorageState(opts Options, cache *BlockCache) (*StorageState, uint64, error) {
	state := newEmptyStorageState(maxFixedLevels(opts))

	entries, err := os.ReadDir(opts.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return state, 0, nil
		}
		return nil, 0, fmt.Errorf("lsm: read data dir: %w", err)
	}

	var maxTierGen uint64

	if opts.CompactionStrategy == CompactionTiered {
		groups := map[uint64][]*SSTable{}
		for _, de := range entries {
			if de.IsDir() {
				continue
			}
			m := tierFileRE.FindStringSubmatch(de.Name())
			if m == nil {
				continue
			}
			gen, _ := strconv.ParseUint(m[1], 10, 64)
			id, err := strconv.ParseUint(m[2], 16, 64)
			if err != nil {
				continue
			}
			sst, err := OpenSSTable(filepath.Join(opts.DataDir, de.Name()), id, cache)
			if err != nil {
				return nil, 0, fmt.Errorf("lsm: recover %s: %w", de.Name(), err)
			}
			groups[gen] = append(groups[gen], sst)
			if gen+1 > maxTierGen {
				maxTierGen = gen + 1
			}
		}
		gens := make([]uint64, 0, len(groups))
		for gen := range groups {
			gens = append(gens, gen)
		}
		sort.Slice(gens, func(i, j int) bool { return gens[i] > gens[j] })
		for _, gen := range gens {
			tables := groups[gen]
			sort.Slice(tables, func(i, j int) bool {
				return bytes.Compare(tables[i].FirstKey(), tables[j].FirstKey()) < 0
			})
			ids := make([]uint64, 0, len(tables))
			for _, sst := range tables {
				state.SSTables[sst.ID] = sst
				ids = append(ids, sst.ID)
			}
			state.Levels = append(state.Levels, ids)
		}
		return state, maxTierGen, nil
	}

	type found struct {
		level int
		sst   *SSTable
		mtime time.Time
	}
	var all []found

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		m := sstFileRE.FindStringSubmatch(de.Name())
		if m == nil {
			continue
		}
		level, _ := strconv.Atoi(m[1])
		id, err := strconv.ParseUint(m[2], 16, 64)
		if err != nil {
			continue
		}
		path := filepath.Join(opts.DataDir, de.Name())
		sst, err := OpenSSTable(path, id, cache)
		if err != nil {
			return nil, 0, fmt.Errorf("lsm: recover %s: %w", de.Name(), err)
		}
		info, _ := de.Info()
		var mtime time.Time
		if info != nil {
			mtime = info.ModTime()
		}
		all = append(all, found{level: level, sst: sst, mtime: mtime})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].mtime.After(all[j].mtime) })

	for _, f := range all {
		state.SSTables[f.sst.ID] = f.sst
		if f.level == 0 {
			state.L0SSTables = append(state.L0SSTables, f.sst.ID)
			continue
		}
		idx := f.level - 1
		for len(state.Levels) <= idx {
			state.Levels = append(state.Levels, nil)
		}
		state.Levels[idx] = append(state.Levels[idx], f.sst.ID)
	}
	for i, ids := range state.Levels {
		sort.Slice(ids, func(a, b int) bool {
			return bytes.Compare(state.SSTables[ids[a]].FirstKey(), state.SSTables[ids[b]].FirstKey()) < 0
		})
		state.Levels[i] = ids
	}

	return state, 0, nil
}

// recoverWALs replays any write-ahead log segments left on disk: immutable
// segments left over from a crash between freezing a memtable and flushing
// it (newest generation first, so appending them yields ImmMemtables'
// newest-first order), then the active segment into state.Memtable. The
// active segment stays open afterward and later Puts append to it.
func (e *Engine) recoverWALs(state *StorageState) error {
	entries, err := os.ReadDir(e.opts.DataDir)
	if err != nil {
		return fmt.Errorf("lsm: scan wal segments: %w", err)
	}

	var immGens []uint64
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		m := immWALRE.FindStringSubmatch(de.Name())
		if m == nil {
			continue
		}
		gen, _ := strconv.ParseUint(m[1], 10, 64)
		immGens = append(immGens, gen)
	}
	sort.Slice(immGens, func(i, j int) bool { return immGens[i] > immGens[j] })

	for _, gen := range immGens {
		path := e.immWALPath(gen)
		wal, err := NewWriteAheadLog(path)
		if err != nil {
			return err
		}
		records, err := wal.Replay()
		if err != nil {
			return fmt.Errorf("lsm: replay immutable wal %s: %w", path, err)
		}
		mt := NewMemtable()
		for _, rec := range records {
			mt.Put(rec.Key, rec.Value)
		}
		state.ImmMemtables = append(state.ImmMemtables, mt)
		e.immWALs = append(e.immWALs, wal)
		if gen >= e.walGen.Load() {
			e.walGen.Store(gen + 1)
		}
	}

	wal, err := NewWriteAheadLog(e.walPath())
	if err != nil {
		return err
	}
	records, err := wal.Replay()
	if err != nil {
		return fmt.Errorf("lsm: replay wal: %w", err)
	}
	for _, rec := range records {
		state.Memtable.Put(rec.Key, rec.Value)
	}
	e.wal = wal
	e.logger.Info("recovered write-ahead log", logging.KeyCount(len(records)), logging.Int("immutable_segments", len(immGens)))
	return nil
}

func (e *Engine) walPath() string {
	return filepath.Join(e.opts.DataDir, "memtable.wal")
}

func (e *Engine) immWALPath(gen uint64) string {
	return filepath.Join(e.opts.DataDir, fmt.Sprintf("memtable-imm-%d.wal", gen))
}

func (e *Engine) loadState() *StorageState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

func (e *Engine) swapState(next *StorageState) {
	e.stateMu.Lock()
	e.state = next
	e.stateMu.Unlock()

	total := len(next.L0SSTables)
	for _, lvl := range next.Levels {
		total += len(lvl)
	}
	e.metrics.setSSTableCounts(total, len(next.L0SSTables))
}

func (e *Engine) isClosed() bool { return e.closed.Load() }

// Put writes key=value. An empty value is indistinguishable from a
// tombstone; use Delete to remove a key.
func (e *Engine) Put(key, value []byte) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	if len(key) == 0 {
		e.metrics.observePut(false)
		return ErrEmptyKey
	}

	if e.wal != nil {
		if err := e.wal.Append(key, value); err != nil {
			e.metrics.observePut(false)
			return fmt.Errorf("lsm: put: %w", err)
		}
	}

	st := e.loadState()
	st.Memtable.Put(key, value)
	e.metrics.observePut(true)

	if st.Memtable.ApproximateSize() >= e.opts.MemtableSizeBytes {
		if err := e.tryFreezeMemtable(); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key, recorded as a tombstone until compaction reaches the
// bottom level.
func (e *Engine) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	e.metrics.observeDelete()
	return e.Put(key, nil)
}

// tryFreezeMemtable freezes the active memtable if it has reached
// MemtableSizeBytes, then applies NumMemtableLimit backpressure. Put calls
// it once its own size check passes; the size is checked again here, and
// if the memtable is under the threshold by then it is a no-op (not an
// error).
func (e *Engine) tryFreezeMemtable() error {
	if e.loadState().Memtable.ApproximateSize() < e.opts.MemtableSizeBytes {
		return nil
	}
	if err := e.freezeMemtable(); err != nil {
		return err
	}
	for uint(len(e.loadState().ImmMemtables)) >= uint(e.opts.NumMemtableLimit) {
		if err := e.flushOnce(); err != nil {
			return err
		}
	}
	return nil
}

// freezeMemtable converts the active memtable into the newest immutable
// memtable and opens a fresh active memtable (and WAL segment, if enabled)
// in its place, unconditionally: callers decide whether freezing is
// warranted (tryFreezeMemtable checks size; Close freezes regardless on
// its way to flushing everything).
func (e *Engine) freezeMemtable() error {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	st := e.loadState()
	if st.Memtable.IsEmpty() {
		return nil
	}

	if e.wal != nil {
		gen := e.walGen.Add(1) - 1
		immPath := e.immWALPath(gen)
		if err := e.wal.Close(); err != nil {
			return fmt.Errorf("lsm: freeze memtable: close wal: %w", err)
		}
		if err := os.Rename(e.walPath(), immPath); err != nil {
			return fmt.Errorf("lsm: freeze memtable: rotate wal: %w", err)
		}
		immWAL, err := NewWriteAheadLog(immPath)
		if err != nil {
			return fmt.Errorf("lsm: freeze memtable: reopen immutable wal: %w", err)
		}
		e.immWALs = append([]WriteAheadLog{immWAL}, e.immWALs...)

		newWAL, err := NewWriteAheadLog(e.walPath())
		if err != nil {
			return fmt.Errorf("lsm: freeze memtable: open new wal: %w", err)
		}
		e.wal = newWAL
	}

	next := st.clone()
	next.ImmMemtables = append([]Memtable{st.Memtable}, next.ImmMemtables...)
	next.Memtable = NewMemtable()
	e.swapState(next)

	e.logger.Info("froze memtable", logging.Int("immutable_count", len(next.ImmMemtables)))

	select {
	case e.flushChan <- struct{}{}:
	default:
	}

	return nil
}

// flushOnce flushes the single oldest immutable memtable to a new SST, or
// is a no-op if there are none. Called both by the flush worker and
// synchronously from tryFreezeMemtable when backpressure demands it, so it
// takes stateLock itself rather than assuming a caller already holds it.
func (e *Engine) flushOnce() error {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	st := e.loadState()
	if len(st.ImmMemtables) == 0 {
		return nil
	}

	start := time.Now()
	oldestIdx := len(st.ImmMemtables) - 1
	imm := st.ImmMemtables[oldestIdx]

	builder := NewSSTableBuilder(e.opts.BlockSize)
	n := 0
	it := imm.Iterator()
	for it.IsValid() {
		builder.Add(it.Key(), it.Value())
		n++
		if err := it.Next(); err != nil {
			return fmt.Errorf("lsm: flush: %w", err)
		}
	}

	id := newSSTableID()
	var path string
	if e.isTiered() {
		gen := e.tierGen.Add(1) - 1
		path = filepath.Join(e.opts.DataDir, fmt.Sprintf("T%d-%016x.sst", gen, id))
	} else {
		path = filepath.Join(e.opts.DataDir, sstFileName(0, id))
	}

	sst, err := builder.Finish(id, path, e.opts.BloomFalsePositiveRate, e.cache)
	if err != nil {
		return fmt.Errorf("lsm: flush: %w", err)
	}

	next := st.clone()
	next.ImmMemtables = next.ImmMemtables[:oldestIdx]
	next.SSTables[id] = sst
	if e.isTiered() {
		next.Levels = append([][]uint64{{id}}, next.Levels...)
	} else {
		next.L0SSTables = append([]uint64{id}, next.L0SSTables...)
	}
	e.swapState(next)

	if len(e.immWALs) > 0 {
		oldestWAL := e.immWALs[len(e.immWALs)-1]
		e.immWALs = e.immWALs[:len(e.immWALs)-1]
		oldestWAL.Close()
		os.Remove(oldestWAL.Path())
	}

	e.metrics.observeFlush(time.Since(start).Seconds())
	e.logger.Info("flushed memtable", logging.SSTableID(id), logging.KeyCount(n))
	return nil
}

// ForceFlushNextImmMemtable flushes the single oldest immutable memtable,
// returning ErrNoImmutableMemtable if there is none to flush.
func (e *Engine) ForceFlushNextImmMemtable() error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	if len(e.loadState().ImmMemtables) == 0 {
		return ErrNoImmutableMemtable
	}
	return e.flushOnce()
}

func (e *Engine) flushWorker() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.FlushInterval)
	defer ticker.Stop()

	drain := func() {
		for {
			if e.isClosed() {
				return
			}
			if len(e.loadState().ImmMemtables) == 0 {
				return
			}
			if err := e.flushOnce(); err != nil {
				e.logger.Error("flush failed", logging.Error(err))
				return
			}
		}
	}

	for {
		select {
		case <-e.doneChan:
			return
		case <-e.flushChan:
			drain()
		case <-ticker.C:
			drain()
		}
	}
}

func (e *Engine) compactionWorker() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.CompactionInterval)
	defer ticker.Stop()

	run := func() {
		if e.isClosed() {
			return
		}
		if !e.compactingForce.TryLock() {
			return
		}
		defer e.compactingForce.Unlock()

		st := e.loadState()
		task := e.controller.GenerateTask(st)
		if task == nil {
			return
		}
		if err := e.runAndApply(st, task, false); err != nil {
			e.logger.Error("compaction failed", logging.Error(err))
		}
	}

	for {
		select {
		case <-e.doneChan:
			return
		case <-e.compactionChan:
			run()
		case <-ticker.C:
			run()
		}
	}
}

// runAndApply executes task, folds its result into state via either the
// configured controller (forced == false) or the dedicated force-full-
// compaction result folder (forced == true), and deletes the superseded
// SST files once the new state is live. Every output file produced by one
// task shares a single tier generation under the Tiered controller, since
// together they represent one logical merged tier.
func (e *Engine) runAndApply(st *StorageState, task *CompactionTask, forced bool) error {
	start := time.Now()

	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	// A freeze or flush may have installed a newer state between the
	// caller's snapshot and acquiring stateLock; plan against the current
	// state so the result is folded into it rather than into a stale one.
	if cur := e.loadState(); cur != st {
		st = cur
		if forced {
			task = forceFullCompactionTask(st)
		} else if task = e.controller.GenerateTask(st); task == nil {
			return nil
		}
	}

	var fileName func(id uint64) string
	if e.isTiered() {
		gen := e.tierGen.Add(1) - 1
		fileName = func(id uint64) string { return fmt.Sprintf("T%d-%016x.sst", gen, id) }
	} else {
		fileName = func(id uint64) string { return sstFileName(task.LowerLevel, id) }
	}

	outputIDs, newTables, err := runCompactionTask(e.opts, st, task, fileName, e.cache)
	if err != nil {
		return err
	}

	var next *StorageState
	var removed []uint64
	if forced {
		next, removed = applyForceFullCompactionResult(st, task, outputIDs)
	} else {
		next, removed = e.controller.ApplyResult(st, task, outputIDs)
	}
	for id, sst := range newTables {
		next.SSTables[id] = sst
	}
	e.swapState(next)

	for _, id := range removed {
		if sst, ok := st.SSTables[id]; ok {
			sst.Remove()
		}
		e.cache.InvalidateSST(id)
	}

	controllerName := string(e.opts.CompactionStrategy)
	if forced {
		controllerName = "force-full"
	}
	e.metrics.observeCompaction(controllerName, time.Since(start).Seconds())
	e.logger.Info("ran compaction",
		logging.String("controller", controllerName),
		logging.KeyCount(len(outputIDs)),
		logging.Int("inputs_removed", len(removed)),
	)
	return nil
}

// ForceFullCompaction merges every L0 table and every table of every level
// (or, for Tiered, every tier) into one run stored in the last level slot,
// dropping every tombstone, regardless of which CompactionController is
// configured. The result is not kept in level 1 unless level 1 is the only
// level. Returns ErrCompactionInProgress
// if a compaction (forced or background) is already running.
func (e *Engine) ForceFullCompaction() error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	if !e.compactingForce.TryLock() {
		return ErrCompactionInProgress
	}
	defer e.compactingForce.Unlock()

	st := e.loadState()
	task := forceFullCompactionTask(st)
	if len(task.UpperLevelSSTIDs) == 0 && len(task.LowerLevelSSTIDs) == 0 {
		return nil
	}
	return e.runAndApply(st, task, true)
}

// Get returns the live value for key, or ErrKeyNotFound if it has none
// (never stored, or deleted).
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	st := e.loadState()

	if v, ok := st.Memtable.Get(key); ok {
		return e.finishGet(v)
	}
	for _, imm := range st.ImmMemtables {
		if v, ok := imm.Get(key); ok {
			return e.finishGet(v)
		}
	}
	for _, id := range st.L0SSTables {
		sst := st.SSTables[id]
		if sst == nil || !sst.MayContain(key) {
			e.metrics.observeBloom(false)
			continue
		}
		e.metrics.observeBloom(true)
		v, ok, err := readSSTKey(sst, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return e.finishGet(v)
		}
	}
	for _, ids := range st.Levels {
		idx := sort.Search(len(ids), func(i int) bool {
			return bytes.Compare(st.SSTables[ids[i]].LastKey(), key) >= 0
		})
		if idx >= len(ids) {
			continue
		}
		sst := st.SSTables[ids[idx]]
		if sst == nil || !sst.MayContain(key) {
			e.metrics.observeBloom(false)
			continue
		}
		e.metrics.observeBloom(true)
		v, ok, err := readSSTKey(sst, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return e.finishGet(v)
		}
	}

	e.metrics.observeGet(false)
	return nil, ErrKeyNotFound
}

func (e *Engine) finishGet(value []byte) ([]byte, error) {
	if len(value) == 0 {
		e.metrics.observeGet(false)
		return nil, ErrKeyNotFound
	}
	e.metrics.observeGet(true)
	return value, nil
}

func readSSTKey(sst *SSTable, key []byte) (value []byte, found bool, err error) {
	it, err := NewSSTableIteratorSeek(sst, key)
	if err != nil {
		return nil, false, fmt.Errorf("lsm: get: %w", err)
	}
	if it.IsValid() && bytes.Equal(it.Key(), key) {
		return append([]byte(nil), it.Value()...), true, nil
	}
	return nil, false, nil
}

// ScanIterator is returned by Scan: a live-value-only, half-open [lo, hi)
// view across every memtable, immutable memtable, and SST in the engine.
type ScanIterator struct {
	inner *FusedIterator
	hi    []byte
}

// IsValid reports whether there is a current entry within range.
func (s *ScanIterator) IsValid() bool {
	if !s.inner.IsValid() {
		return false
	}
	if s.hi != nil && bytes.Compare(s.inner.Key(), s.hi) >= 0 {
		return false
	}
	return true
}

// Key returns the current entry's key.
func (s *ScanIterator) Key() []byte { return s.inner.Key() }

// Value returns the current entry's value.
func (s *ScanIterator) Value() []byte { return s.inner.Value() }

// Next advances to the next live entry.
func (s *ScanIterator) Next() error { return s.inner.Next() }

// Scan returns an iterator over live keys in [lo, hi). A nil lo starts at
// the beginning; a nil hi has no upper bound.
func (e *Engine) Scan(lo, hi []byte) (*ScanIterator, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	st := e.loadState()

	memIters := []StorageIterator{st.Memtable.Iterator()}
	for _, imm := range st.ImmMemtables {
		memIters = append(memIters, imm.Iterator())
	}
	memMerge, err := NewMergeIterator(memIters)
	if err != nil {
		return nil, err
	}

	var l0Iters []StorageIterator
	for _, id := range st.L0SSTables {
		sst := st.SSTables[id]
		var it StorageIterator
		var err error
		if lo != nil {
			it, err = NewSSTableIteratorSeek(sst, lo)
		} else {
			it, err = NewSSTableIterator(sst)
		}
		if err != nil {
			return nil, fmt.Errorf("lsm: scan: %w", err)
		}
		l0Iters = append(l0Iters, it)
	}
	l0Merge, err := NewMergeIterator(l0Iters)
	if err != nil {
		return nil, err
	}

	upper := NewTwoMergeIterator(memMerge, l0Merge)

	var levelIters []StorageIterator
	for _, ids := range st.Levels {
		tables := make([]*SSTable, 0, len(ids))
		for _, id := range ids {
			tables = append(tables, st.SSTables[id])
		}
		var it StorageIterator
		var err error
		if lo != nil {
			it, err = NewSstConcatIteratorSeek(tables, lo)
		} else {
			it, err = NewSstConcatIterator(tables)
		}
		if err != nil {
			return nil, fmt.Errorf("lsm: scan: %w", err)
		}
		levelIters = append(levelIters, it)
	}
	levelsMerge, err := NewMergeIterator(levelIters)
	if err != nil {
		return nil, err
	}

	combined := NewTwoMergeIterator(upper, levelsMerge)
	lsmIt, err := NewLsmIterator(combined)
	if err != nil {
		return nil, err
	}

	fused := NewFusedIterator(lsmIt)
	// Memtable iterators start at their first entry, so skip keys below lo.
	for lo != nil && fused.IsValid() && bytes.Compare(fused.Key(), lo) < 0 {
		if err := fused.Next(); err != nil {
			return nil, fmt.Errorf("lsm: scan: %w", err)
		}
	}

	return &ScanIterator{inner: fused, hi: hi}, nil
}

// Sync ensures every Put/Delete acknowledged so far is durable in the WAL.
func (e *Engine) Sync() error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	if e.wal == nil {
		return nil
	}
	if err := e.wal.Sync(); err != nil {
		return fmt.Errorf("lsm: sync: %w", err)
	}
	return nil
}

// Close stops the background workers, flushes every outstanding memtable,
// and releases every open file handle.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.doneChan)
	e.wg.Wait()

	for {
		st := e.loadState()
		if st.Memtable.IsEmpty() && len(st.ImmMemtables) == 0 {
			break
		}
		if !st.Memtable.IsEmpty() {
			if err := e.freezeMemtable(); err != nil {
				return err
			}
			continue
		}
		if err := e.flushOnce(); err != nil {
			return err
		}
	}

	if e.wal != nil {
		if err := e.wal.Close(); err != nil {
			return fmt.Errorf("lsm: close wal: %w", err)
		}
	}
	for _, w := range e.immWALs {
		w.Close()
	}

	st := e.loadState()
	for _, sst := range st.SSTables {
		sst.Close()
	}
	return nil
}
