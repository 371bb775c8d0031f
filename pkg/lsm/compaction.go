package lsm

import (
	"fmt"
	"path/filepath"
)

// runCompactionTask executes task against state: it opens every input SST
// (both upper and lower level ids), merges them in newest-wins order, drops
// tombstones only if the lower level is the bottom level, and splits the
// output across as many new SSTs as needed to keep each near
// opts.TargetSSTSize. fileName names each output file given the id assigned
// to it; the caller picks a naming scheme appropriate to its compaction
// controller (a fixed level number for SimpleLeveled/Leveled, a tier
// generation for Tiered).
//
// Grounded on the reference engine's compaction.go Compact() for the
// overall shape (collect, merge, split-by-size, build) and on
// mini-lsm-starter's compact.rs for the tombstone-dropping rule, which the
// reference engine's version does not implement correctly (it drops
// tombstones unconditionally — see DESIGN.md).
func runCompactionTask(opts Options, state *StorageState, task *CompactionTask, fileName func(id uint64) string, cache *BlockCache) (outputIDs []uint64, newTables map[uint64]*SSTable, err error) {
	var iters []StorageIterator

	for _, id := range task.UpperLevelSSTIDs {
		sst := state.SSTables[id]
		if sst == nil {
			continue
		}
		it, err := NewSSTableIterator(sst)
		if err != nil {
			return nil, nil, fmt.Errorf("lsm: compaction: open upper sstable %d: %w", id, err)
		}
		iters = append(iters, it)
	}
	for _, id := range task.LowerLevelSSTIDs {
		sst := state.SSTables[id]
		if sst == nil {
			continue
		}
		it, err := NewSSTableIterator(sst)
		if err != nil {
			return nil, nil, fmt.Errorf("lsm: compaction: open lower sstable %d: %w", id, err)
		}
		iters = append(iters, it)
	}

	if len(iters) == 0 {
		return nil, map[uint64]*SSTable{}, nil
	}

	merged, err := NewMergeIterator(iters)
	if err != nil {
		return nil, nil, err
	}

	newTables = make(map[uint64]*SSTable)
	builder := NewSSTableBuilder(opts.BlockSize)
	hasEntries := false

	flush := func() error {
		if !hasEntries {
			return nil
		}
		id := newSSTableID()
		path := filepath.Join(opts.DataDir, fileName(id))
		sst, err := builder.Finish(id, path, opts.BloomFalsePositiveRate, cache)
		if err != nil {
			return fmt.Errorf("lsm: compaction: finish sstable: %w", err)
		}
		outputIDs = append(outputIDs, id)
		newTables[id] = sst
		builder = NewSSTableBuilder(opts.BlockSize)
		hasEntries = false
		return nil
	}

	for merged.IsValid() {
		key := merged.Key()
		value := merged.Value()
		isTombstone := len(value) == 0

		if !(isTombstone && task.IsLowerLevelBottomLevel) {
			builder.Add(key, value)
			hasEntries = true
		}

		if builder.EstimatedSize() >= opts.TargetSSTSize {
			if err := flush(); err != nil {
				return nil, nil, err
			}
		}

		if err := merged.Next(); err != nil {
			return nil, nil, fmt.Errorf("lsm: compaction: %w", err)
		}
	}
	if err := flush(); err != nil {
		return nil, nil, err
	}

	return outputIDs, newTables, nil
}

func sstFileName(level int, id uint64) string {
	return fmt.Sprintf("L%d-%016x.sst", level, id)
}

// forceFullCompactionTask builds the CompactionTask run by
// Engine.ForceFullCompaction: merge every table anywhere in the engine (L0
// plus every level or tier) into one bottom run, unconditionally dropping
// tombstones, since a full compaction always reaches every version of
// every key. This intentionally treats Tiered's tiers the same as
// SimpleLeveled/Leveled's fixed levels (both are just state.Levels
// entries) rather than special-casing per controller.
//
// Grounded on mini-lsm-starter's compact.rs force_full_compaction / the
// reference engine's force-compaction entry points.
func forceFullCompactionTask(state *StorageState) *CompactionTask {
	lowerIDs := append([]uint64(nil), state.L0SSTables...)
	for _, ids := range state.Levels {
		lowerIDs = append(lowerIDs, ids...)
	}
	lower := len(state.Levels)
	if lower == 0 {
		lower = 1
	}
	return &CompactionTask{
		UpperLevel:              nil,
		UpperLevelSSTIDs:        nil,
		LowerLevel:              lower,
		LowerLevelSSTIDs:        lowerIDs,
		IsLowerLevelBottomLevel: true,
	}
}

// applyForceFullCompactionResult folds a force-full compaction's output
// back into state: every L0 table and every level/tier collapses into a
// single run occupying the last level slot.
func applyForceFullCompactionResult(state *StorageState, task *CompactionTask, outputIDs []uint64) (*StorageState, []uint64) {
	next := state.clone()

	removed := append([]uint64(nil), task.LowerLevelSSTIDs...)

	next.L0SSTables = nil
	if len(next.Levels) == 0 {
		next.Levels = make([][]uint64, 1)
	}
	for i := range next.Levels {
		next.Levels[i] = nil
	}
	next.Levels[len(next.Levels)-1] = append([]uint64(nil), outputIDs...)

	return next, removed
}
