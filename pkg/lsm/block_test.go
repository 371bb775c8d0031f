package lsm

import (
	"bytes"
	"fmt"
	"testing"
)

func TestBlockBuilderAddRejectsWhenFull(t *testing.T) {
	b := NewBlockBuilder(40)

	if !b.Add([]byte("k1"), []byte("v1")) {
		t.Fatalf("expected first add to succeed on an empty builder")
	}
	if b.Add([]byte("k2"), []byte("a very long value that overflows the block")) {
		t.Fatalf("expected add to be rejected once the block would overflow")
	}
	if b.IsEmpty() {
		t.Fatalf("builder should still report non-empty after a rejected add")
	}
}

func TestBlockBuilderAlwaysAcceptsFirstEntry(t *testing.T) {
	b := NewBlockBuilder(8)
	if !b.Add([]byte("k"), []byte("this value alone already exceeds the target block size")) {
		t.Fatalf("a block must accept at least one entry even if oversized")
	}
}

func TestBlockEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		entries [][2]string
	}{
		{"single entry", [][2]string{{"a", "1"}}},
		{"multiple entries", [][2]string{{"a", "1"}, {"bb", "22"}, {"ccc", "333"}}},
		{"empty value is a tombstone", [][2]string{{"a", ""}, {"b", "2"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := NewBlockBuilder(4096)
			for _, e := range tt.entries {
				if !builder.Add([]byte(e[0]), []byte(e[1])) {
					t.Fatalf("add(%q, %q) unexpectedly rejected", e[0], e[1])
				}
			}
			block := builder.Build()

			decoded, err := DecodeBlock(block.Encode())
			if err != nil {
				t.Fatalf("DecodeBlock: %v", err)
			}

			it := NewBlockIterator(decoded)
			it.SeekToFirst()
			for _, e := range tt.entries {
				if !it.IsValid() {
					t.Fatalf("iterator ended early, expected %q", e[0])
				}
				if string(it.Key()) != e[0] {
					t.Errorf("key = %q, want %q", it.Key(), e[0])
				}
				if string(it.Value()) != e[1] {
					t.Errorf("value = %q, want %q", it.Value(), e[1])
				}
				it.Next()
			}
			if it.IsValid() {
				t.Errorf("iterator should be exhausted, still at key %q", it.Key())
			}
		})
	}
}

func TestDecodeBlockRejectsTruncatedTrailer(t *testing.T) {
	if _, err := DecodeBlock([]byte{0x01}); err == nil {
		t.Fatalf("expected an error decoding a block shorter than its trailer")
	}
}

func TestDecodeBlockRejectsOverrunningOffsetTable(t *testing.T) {
	raw := []byte{0xFF, 0x7F}
	if _, err := DecodeBlock(raw); err == nil {
		t.Fatalf("expected an error when the claimed entry count overruns the block")
	}
}

func TestBlockIteratorSeekToKey(t *testing.T) {
	builder := NewBlockBuilder(4096)
	keys := []string{"a", "c", "e", "g", "i"}
	for _, k := range keys {
		builder.Add([]byte(k), []byte(k+k))
	}
	block := builder.Build()

	tests := []struct {
		seek string
		want string
		ok   bool
	}{
		{"a", "a", true},
		{"b", "c", true},
		{"e", "e", true},
		{"h", "i", true},
		{"z", "", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("seek=%s", tt.seek), func(t *testing.T) {
			it := NewBlockIterator(block)
			it.SeekToKey([]byte(tt.seek))
			if tt.ok != it.IsValid() {
				t.Fatalf("IsValid() = %v, want %v", it.IsValid(), tt.ok)
			}
			if tt.ok && !bytes.Equal(it.Key(), []byte(tt.want)) {
				t.Errorf("Key() = %q, want %q", it.Key(), tt.want)
			}
		})
	}
}
