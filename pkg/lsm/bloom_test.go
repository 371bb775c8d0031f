package lsm

import (
	"fmt"
	"testing"
)

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	keys := make([][]byte, 0, 500)
	for i := 0; i < 500; i++ {
		keys = append(keys, []byte(fmt.Sprintf("key-%04d", i)))
	}

	f := NewBloomFilter(len(keys), BitsPerKeyForFalsePositiveRate(0.01))
	for _, k := range keys {
		f.Add(k)
	}

	for _, k := range keys {
		if !f.MayContain(k) {
			t.Fatalf("bloom filter reported a false negative for %q", k)
		}
	}
}

func TestBloomFilterFalsePositiveRateIsBounded(t *testing.T) {
	const n = 2000
	keys := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, []byte(fmt.Sprintf("present-%06d", i)))
	}

	f := NewBloomFilter(len(keys), BitsPerKeyForFalsePositiveRate(0.01))
	for _, k := range keys {
		f.Add(k)
	}

	falsePositives := 0
	for i := 0; i < n; i++ {
		absent := []byte(fmt.Sprintf("absent-%06d", i))
		if f.MayContain(absent) {
			falsePositives++
		}
	}

	// The target rate is 1%; allow generous headroom so the test isn't flaky
	// while still catching a badly broken hash or bit-sizing calculation.
	if rate := float64(falsePositives) / float64(n); rate > 0.1 {
		t.Fatalf("false positive rate too high: %d/%d = %f", falsePositives, n, rate)
	}
}

func TestBloomFilterEncodeDecodeRoundTrip(t *testing.T) {
	f := NewBloomFilter(10, BitsPerKeyForFalsePositiveRate(0.01))
	present := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	for _, k := range present {
		f.Add(k)
	}

	decoded, err := DecodeBloomFilter(f.Encode())
	if err != nil {
		t.Fatalf("DecodeBloomFilter: %v", err)
	}
	for _, k := range present {
		if !decoded.MayContain(k) {
			t.Errorf("decoded filter lost membership for %q", k)
		}
	}
}

func TestBitsPerKeyForFalsePositiveRateIsClamped(t *testing.T) {
	tests := []struct {
		name string
		p    float64
	}{
		{"zero", 0},
		{"negative", -1},
		{"one", 1},
		{"above one", 5},
		{"tiny", 1e-9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bits := BitsPerKeyForFalsePositiveRate(tt.p)
			if bits < 1 || bits > 30 {
				t.Errorf("BitsPerKeyForFalsePositiveRate(%v) = %v, want in [1, 30]", tt.p, bits)
			}
		})
	}
}

func TestDecodeBloomFilterRejectsShortInput(t *testing.T) {
	if _, err := DecodeBloomFilter([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected an error decoding a bloom region shorter than its header")
	}
}
