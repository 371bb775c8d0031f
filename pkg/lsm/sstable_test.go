package lsm

import (
	"path/filepath"
	"testing"
)

func buildTestSSTable(t *testing.T, id uint64, entries [][2]string) *SSTable {
	t.Helper()
	builder := NewSSTableBuilder(128)
	for _, e := range entries {
		builder.Add([]byte(e[0]), []byte(e[1]))
	}
	path := filepath.Join(t.TempDir(), "table.sst")
	sst, err := builder.Finish(id, path, 0.01, nil)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	t.Cleanup(func() { sst.Close() })
	return sst
}

func TestSSTableBuildOpenRoundTrip(t *testing.T) {
	entries := [][2]string{
		{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}, {"e", "5"},
	}
	sst := buildTestSSTable(t, 42, entries)

	if sst.ID != 42 {
		t.Fatalf("sst.ID = %d, want 42 (the id passed to Finish, not an internally minted one)", sst.ID)
	}
	if string(sst.FirstKey()) != "a" || string(sst.LastKey()) != "e" {
		t.Fatalf("key range = [%s, %s], want [a, e]", sst.FirstKey(), sst.LastKey())
	}

	it, err := NewSSTableIterator(sst)
	if err != nil {
		t.Fatalf("NewSSTableIterator: %v", err)
	}
	for _, e := range entries {
		if !it.IsValid() {
			t.Fatalf("iterator ended early, expected %q", e[0])
		}
		if string(it.Key()) != e[0] || string(it.Value()) != e[1] {
			t.Errorf("got (%q, %q), want (%q, %q)", it.Key(), it.Value(), e[0], e[1])
		}
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if it.IsValid() {
		t.Errorf("iterator should be exhausted")
	}
}

func TestSSTableMayContain(t *testing.T) {
	sst := buildTestSSTable(t, 1, [][2]string{{"b", "1"}, {"d", "2"}, {"f", "3"}})

	if !sst.MayContain([]byte("b")) {
		t.Errorf("MayContain should be true for a present key")
	}
	if sst.MayContain([]byte("a")) {
		t.Errorf("MayContain should be false for a key outside the sstable's range")
	}
	if sst.MayContain([]byte("z")) {
		t.Errorf("MayContain should be false for a key outside the sstable's range")
	}
}

func TestSSTableIteratorSeek(t *testing.T) {
	sst := buildTestSSTable(t, 2, [][2]string{
		{"a", "1"}, {"c", "2"}, {"e", "3"}, {"g", "4"},
	})

	it, err := NewSSTableIteratorSeek(sst, []byte("d"))
	if err != nil {
		t.Fatalf("NewSSTableIteratorSeek: %v", err)
	}
	if !it.IsValid() || string(it.Key()) != "e" {
		t.Fatalf("seek(d) landed on %q, want e", it.Key())
	}

	it, err = NewSSTableIteratorSeek(sst, []byte("z"))
	if err != nil {
		t.Fatalf("NewSSTableIteratorSeek: %v", err)
	}
	if it.IsValid() {
		t.Fatalf("seek past the last key should leave the iterator invalid")
	}
}

func TestSSTableBuilderRejectsEmptyInput(t *testing.T) {
	builder := NewSSTableBuilder(128)
	path := filepath.Join(t.TempDir(), "empty.sst")
	if _, err := builder.Finish(1, path, 0.01, nil); err == nil {
		t.Fatalf("expected an error building an sstable with no entries")
	}
}
