package lsm

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// CompactionStrategyKind selects which compaction controller the engine runs.
type CompactionStrategyKind string

const (
	CompactionSimpleLeveled CompactionStrategyKind = "simple-leveled"
	CompactionTiered        CompactionStrategyKind = "tiered"
	CompactionLeveled       CompactionStrategyKind = "leveled"
)

// Options configures an Engine. Fields not covered by a validator tag are
// checked by Validate, which also enforces cross-field relationships the
// struct-tag validator cannot express.
type Options struct {
	DataDir string `yaml:"data_dir" validate:"required"`

	// BlockSize is the target size, in bytes, of an encoded data block
	// before BlockBuilder.Add starts refusing new entries.
	BlockSize int `yaml:"block_size" validate:"gte=256"`

	// TargetSSTSize is the target size, in bytes, of one SST file. Flush and
	// compaction split output across multiple files once this is exceeded.
	TargetSSTSize int `yaml:"target_sst_size" validate:"gte=1024"`

	// MemtableSizeBytes is the approximate size at which the active
	// memtable is frozen (made immutable) and queued for flush.
	MemtableSizeBytes int `yaml:"memtable_size_bytes" validate:"gte=1024"`

	// NumMemtableLimit caps memtable+immutable memtables before flush is
	// forced synchronously on the write path instead of deferred to the
	// flush worker.
	NumMemtableLimit int `yaml:"num_memtable_limit" validate:"gte=1"`

	// BloomFalsePositiveRate is the target false-positive rate for newly
	// built SST bloom filters.
	BloomFalsePositiveRate float64 `yaml:"bloom_false_positive_rate" validate:"gt=0,lt=0.5"`

	// BlockCacheCapacity is the maximum number of decoded blocks the shared
	// block cache retains.
	BlockCacheCapacity int `yaml:"block_cache_capacity" validate:"gte=16"`

	// FlushInterval is the flush worker's periodic tick; it is a safety net,
	// not the primary flush trigger (memtable fullness is).
	FlushInterval time.Duration `yaml:"flush_interval" validate:"gte=1000000"`

	// CompactionInterval is the compaction worker's periodic tick.
	CompactionInterval time.Duration `yaml:"compaction_interval" validate:"gte=1000000"`

	// CompactionStrategy selects the controller; SimpleLeveled, Tiered, or
	// the dynamic-level Leveled controller.
	CompactionStrategy CompactionStrategyKind `yaml:"compaction_strategy" validate:"oneof=simple-leveled tiered leveled"`

	SimpleLeveled SimpleLeveledOptions `yaml:"simple_leveled"`
	Tiered        TieredOptions        `yaml:"tiered"`
	Leveled       LeveledOptions       `yaml:"leveled"`

	// EnableWAL turns on the default write-ahead log. Embedders that supply
	// their own durability layer via the WriteAheadLog interface set this false.
	EnableWAL bool `yaml:"enable_wal"`
}

// SimpleLeveledOptions tunes the SimpleLeveled compaction controller.
type SimpleLeveledOptions struct {
	SizeRatioPercent               uint `yaml:"size_ratio_percent" validate:"gte=1"`
	Level0FileNumCompactionTrigger uint `yaml:"level0_file_num_compaction_trigger" validate:"gte=1"`
	MaxLevels                      uint `yaml:"max_levels" validate:"gte=1"`
}

// TieredOptions tunes the Tiered compaction controller.
type TieredOptions struct {
	NumTiers                    uint `yaml:"num_tiers" validate:"gte=1"`
	MaxSizeAmplificationPercent uint `yaml:"max_size_amplification_percent" validate:"gte=1"`
	SizeRatio                   uint `yaml:"size_ratio" validate:"gte=1"`
	MinMergeWidth               uint `yaml:"min_merge_width" validate:"gte=2"`
}

// LeveledOptions tunes the Leveled-with-dynamic-levels compaction controller.
type LeveledOptions struct {
	LevelSizeMultiplier            uint  `yaml:"level_size_multiplier" validate:"gte=2"`
	Level0FileNumCompactionTrigger uint  `yaml:"level0_file_num_compaction_trigger" validate:"gte=1"`
	MaxLevels                      uint  `yaml:"max_levels" validate:"gte=1"`
	BaseLevelSizeMB                int64 `yaml:"base_level_size_mb" validate:"gte=1"`
}

// DefaultOptions returns sane defaults rooted at dataDir, using the Leveled
// controller (the most general of the three).
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:                dataDir,
		BlockSize:              4096,
		TargetSSTSize:          2 << 20,
		MemtableSizeBytes:      1 << 20,
		NumMemtableLimit:       4,
		BloomFalsePositiveRate: 0.01,
		BlockCacheCapacity:     4096,
		FlushInterval:          50 * time.Millisecond,
		CompactionInterval:     50 * time.Millisecond,
		CompactionStrategy:     CompactionLeveled,
		SimpleLeveled: SimpleLeveledOptions{
			SizeRatioPercent:               200,
			Level0FileNumCompactionTrigger: 2,
			MaxLevels:                      4,
		},
		Tiered: TieredOptions{
			NumTiers:                    4,
			MaxSizeAmplificationPercent: 200,
			SizeRatio:                   1,
			MinMergeWidth:               2,
		},
		Leveled: LeveledOptions{
			LevelSizeMultiplier:            4,
			Level0FileNumCompactionTrigger: 4,
			MaxLevels:                      4,
			BaseLevelSizeMB:                2,
		},
		EnableWAL: true,
	}
}

var optionsValidator = validator.New()

// Validate checks field ranges via struct tags, then cross-field invariants
// that tags cannot express.
func (o *Options) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if o.TargetSSTSize < o.BlockSize {
		return fmt.Errorf("%w: target_sst_size must be >= block_size", ErrInvalidConfig)
	}
	switch o.CompactionStrategy {
	case CompactionSimpleLeveled:
		if o.SimpleLeveled.MaxLevels == 0 {
			return fmt.Errorf("%w: simple_leveled.max_levels must be > 0", ErrInvalidConfig)
		}
	case CompactionTiered:
		if o.Tiered.MinMergeWidth > o.Tiered.NumTiers {
			return fmt.Errorf("%w: tiered.min_merge_width must be <= tiered.num_tiers", ErrInvalidConfig)
		}
	case CompactionLeveled:
		if o.Leveled.MaxLevels == 0 {
			return fmt.Errorf("%w: leveled.max_levels must be > 0", ErrInvalidConfig)
		}
	}
	return nil
}

// LoadOptionsFile reads YAML-encoded Options from path and validates them.
func LoadOptionsFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("lsm: read config: %w", err)
	}
	opts := DefaultOptions(".")
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("lsm: parse config: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}
