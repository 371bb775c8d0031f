package logging

import "time"

// Field constructors. Grouped by primitive type first, then by the
// lsmkv concepts call sites actually log (an SST id, a level, a key
// count) rather than the host application's domain objects.

func String(key, value string) Field { return Field{Key: key, Value: value} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Component names the subsystem emitting the log line (e.g. "flush",
// "compaction", "engine").
func Component(name string) Field { return String("component", name) }

// SSTableID identifies an SST involved in the logged event.
func SSTableID(id uint64) Field { return Uint64("sstable_id", id) }

// LSMLevel names the LSM level involved (0 for L0).
func LSMLevel(n int) Field { return Int("level", n) }

// KeyCount records how many keys an operation touched.
func KeyCount(n int) Field { return Int("key_count", n) }

// BytesWritten records bytes written to disk by an operation.
func BytesWritten(n int64) Field { return Int64("bytes_written", n) }

// TombstonesDropped records how many tombstones a compaction discarded.
func TombstonesDropped(n int) Field { return Int("tombstones_dropped", n) }

func Latency(d time.Duration) Field { return Duration("latency", d) }

func Path(p string) Field { return String("path", p) }
