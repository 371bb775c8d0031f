package lsm

import "testing"

func memtableFrom(entries [][2]string) Memtable {
	m := NewMemtable()
	for _, e := range entries {
		m.Put([]byte(e[0]), []byte(e[1]))
	}
	return m
}

func collect(t *testing.T, it StorageIterator) [][2]string {
	t.Helper()
	var got [][2]string
	for it.IsValid() {
		got = append(got, [2]string{string(it.Key()), string(it.Value())})
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	return got
}

func TestMergeIteratorNewestSourceWinsTies(t *testing.T) {
	newer := memtableFrom([][2]string{{"a", "new-a"}, {"c", "new-c"}})
	older := memtableFrom([][2]string{{"a", "old-a"}, {"b", "old-b"}, {"c", "old-c"}})

	merged, err := NewMergeIterator([]StorageIterator{newer.Iterator(), older.Iterator()})
	if err != nil {
		t.Fatalf("NewMergeIterator: %v", err)
	}

	got := collect(t, merged)
	want := [][2]string{{"a", "new-a"}, {"b", "old-b"}, {"c", "new-c"}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMergeIteratorEmptySources(t *testing.T) {
	merged, err := NewMergeIterator([]StorageIterator{memtableFrom(nil).Iterator()})
	if err != nil {
		t.Fatalf("NewMergeIterator: %v", err)
	}
	if merged.IsValid() {
		t.Fatalf("merge of empty sources should be invalid")
	}
}

func TestTwoMergeIteratorAFavoredOnTies(t *testing.T) {
	a := memtableFrom([][2]string{{"b", "a-b"}, {"d", "a-d"}})
	b := memtableFrom([][2]string{{"a", "b-a"}, {"b", "b-b"}, {"c", "b-c"}})

	merged := NewTwoMergeIterator(a.Iterator(), b.Iterator())
	got := collect(t, merged)
	want := [][2]string{{"a", "b-a"}, {"b", "a-b"}, {"c", "b-c"}, {"d", "a-d"}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}
