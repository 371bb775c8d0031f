package lsm

// CompactionTask describes one compaction job in a shape shared by all
// three controllers: merge UpperLevelSSTIDs (from UpperLevel, or L0 if
// UpperLevel is nil) with LowerLevelSSTIDs (from LowerLevel), writing the
// result into LowerLevel. IsLowerLevelBottomLevel gates tombstone dropping:
// a tombstone is only safe to discard once it has been compacted into the
// last level, since an earlier level might still shadow an older value
// that the tombstone needs to suppress.
type CompactionTask struct {
	UpperLevel              *int
	UpperLevelSSTIDs        []uint64
	LowerLevel              int
	LowerLevelSSTIDs        []uint64
	IsLowerLevelBottomLevel bool

	// MergedTiers is set only by the Tiered controller, which can merge
	// more than two sorted runs in a single task: it lists every tier
	// index involved (including LowerLevel, the oldest/bottom-most one),
	// in newest-to-oldest order.
	MergedTiers []int
}

// CompactionController picks compaction work given the current state and
// folds a completed compaction's output back into a new state.
type CompactionController interface {
	// GenerateTask inspects state and returns the next compaction task to
	// run, or nil if nothing needs compacting right now.
	GenerateTask(state *StorageState) *CompactionTask

	// ApplyResult builds the StorageState that results from replacing
	// task's input SST ids with outputIDs, and returns the ids of SSTs that
	// are now unreferenced and may be deleted from disk.
	ApplyResult(state *StorageState, task *CompactionTask, outputIDs []uint64) (next *StorageState, removed []uint64)
}

// filterOut returns ids with every member of remove excluded, preserving
// order.
func filterOut(ids []uint64, remove map[uint64]bool) []uint64 {
	kept := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	return kept
}

func toSet(ids []uint64) map[uint64]bool {
	set := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
