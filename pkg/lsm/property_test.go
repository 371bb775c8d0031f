package lsm

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestMemtableInvariants uses property-based testing to verify invariants
// that must hold for any sequence of memtable operations, regardless of the
// concrete keys and values involved.
func TestMemtableInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("put then get returns the put value", prop.ForAll(
		func(key, value string) bool {
			if key == "" {
				return true // empty keys are rejected at the Engine layer, not Memtable's
			}
			m := NewMemtable()
			m.Put([]byte(key), []byte(value))
			got, ok := m.Get([]byte(key))
			return ok && string(got) == value
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("delete leaves a tombstone, not an absence", prop.ForAll(
		func(key string) bool {
			if key == "" {
				return true
			}
			m := NewMemtable()
			m.Put([]byte(key), []byte("v"))
			m.Delete([]byte(key))
			v, ok := m.Get([]byte(key))
			return ok && len(v) == 0
		},
		gen.AlphaString(),
	))

	properties.Property("the iterator visits keys in sorted order", prop.ForAll(
		func(keys []string) bool {
			m := NewMemtable()
			seen := map[string]bool{}
			var unique []string
			for _, k := range keys {
				if k == "" || seen[k] {
					continue
				}
				seen[k] = true
				unique = append(unique, k)
				m.Put([]byte(k), []byte("v"))
			}
			sort.Strings(unique)

			it := m.Iterator()
			var got []string
			for it.IsValid() {
				got = append(got, string(it.Key()))
				if err := it.Next(); err != nil {
					return false
				}
			}
			if len(got) != len(unique) {
				return false
			}
			for i := range unique {
				if got[i] != unique[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestBloomFilterInvariants verifies that a bloom filter never produces a
// false negative, the one property it must guarantee regardless of its
// false-positive rate.
func TestBloomFilterInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("every added key is reported as possibly present", prop.ForAll(
		func(keys []string) bool {
			var unique [][]byte
			seen := map[string]bool{}
			for _, k := range keys {
				if k == "" || seen[k] {
					continue
				}
				seen[k] = true
				unique = append(unique, []byte(k))
			}
			if len(unique) == 0 {
				return true
			}

			f := NewBloomFilter(len(unique), BitsPerKeyForFalsePositiveRate(0.01))
			for _, k := range unique {
				f.Add(k)
			}
			for _, k := range unique {
				if !f.MayContain(k) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestBlockRoundTripInvariants verifies that any sorted run of key/value
// pairs small enough to fit one block survives an encode/decode cycle
// byte-for-byte in key order.
func TestBlockRoundTripInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("a block decodes back to what was added, in sorted order", prop.ForAll(
		func(keys []string) bool {
			seen := map[string]bool{}
			var unique []string
			for _, k := range keys {
				if k == "" || seen[k] {
					continue
				}
				seen[k] = true
				unique = append(unique, k)
			}
			if len(unique) == 0 {
				return true
			}
			sort.Strings(unique)

			builder := NewBlockBuilder(1 << 20)
			for _, k := range unique {
				if !builder.Add([]byte(k), []byte(k)) {
					return false
				}
			}
			block := builder.Build()

			decoded, err := DecodeBlock(block.Encode())
			if err != nil {
				return false
			}
			it := NewBlockIterator(decoded)
			it.SeekToFirst()
			for _, k := range unique {
				if !it.IsValid() || string(it.Key()) != k {
					return false
				}
				it.Next()
			}
			return !it.IsValid()
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
