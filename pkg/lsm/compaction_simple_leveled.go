package lsm

// SimpleLeveledController triggers a full-level merge whenever L0 has
// accumulated too many files (Trigger 1), or whenever some level has grown
// too small relative to the level above it (Trigger 2: the level is not
// "pulling its weight" and should be merged down to rebalance future
// write/read amplification).
//
// Grounded on mini-lsm-starter's compact/simple_leveled.rs for Trigger 1
// and the struct shapes; Trigger 2 is left as todo!() in that starter
// checkpoint, so its implementation here (and in ApplyResult's
// upper-level-is-not-L0 branch) is derived directly from spec.md's
// textual description rather than copied from Rust.
type SimpleLeveledController struct {
	opts SimpleLeveledOptions
}

// NewSimpleLeveledController creates a controller with the given tuning.
func NewSimpleLeveledController(opts SimpleLeveledOptions) *SimpleLeveledController {
	return &SimpleLeveledController{opts: opts}
}

func (c *SimpleLeveledController) levelSizes(state *StorageState) []int {
	sizes := make([]int, int(c.opts.MaxLevels)+1)
	sizes[0] = len(state.L0SSTables)
	for i := 0; i < int(c.opts.MaxLevels) && i < len(state.Levels); i++ {
		sizes[i+1] = len(state.Levels[i])
	}
	return sizes
}

// GenerateTask implements CompactionController.
func (c *SimpleLeveledController) GenerateTask(state *StorageState) *CompactionTask {
	sizes := c.levelSizes(state)

	for i := 0; i < int(c.opts.MaxLevels); i++ {
		if i == 0 && uint(len(state.L0SSTables)) < c.opts.Level0FileNumCompactionTrigger {
			continue
		}
		lowerLevelNum := i + 1
		if i > 0 {
			if sizes[i] == 0 {
				continue
			}
			ratio := float64(sizes[lowerLevelNum]) / float64(sizes[i])
			if ratio >= float64(c.opts.SizeRatioPercent)/100.0 {
				continue
			}
		}

		task := &CompactionTask{
			LowerLevel:              lowerLevelNum,
			IsLowerLevelBottomLevel: lowerLevelNum == int(c.opts.MaxLevels),
		}
		if i == 0 {
			task.UpperLevel = nil
			task.UpperLevelSSTIDs = append([]uint64(nil), state.L0SSTables...)
		} else {
			upper := i
			task.UpperLevel = &upper
			task.UpperLevelSSTIDs = append([]uint64(nil), state.Levels[i-1]...)
		}
		task.LowerLevelSSTIDs = append([]uint64(nil), state.Levels[lowerLevelNum-1]...)
		return task
	}
	return nil
}

// ApplyResult implements CompactionController. A simple-leveled compaction
// always consumes every id from both input levels, so both levels are
// fully replaced rather than filtered (except L0, where concurrent flushes
// may have appended new tables since the task was generated).
func (c *SimpleLeveledController) ApplyResult(state *StorageState, task *CompactionTask, outputIDs []uint64) (*StorageState, []uint64) {
	next := state.clone()
	removed := append([]uint64(nil), task.UpperLevelSSTIDs...)
	removed = append(removed, task.LowerLevelSSTIDs...)

	if task.UpperLevel == nil {
		remove := toSet(task.UpperLevelSSTIDs)
		next.L0SSTables = filterOut(next.L0SSTables, remove)
	} else {
		next.Levels[*task.UpperLevel-1] = nil
	}
	next.Levels[task.LowerLevel-1] = append([]uint64(nil), outputIDs...)

	return next, removed
}
