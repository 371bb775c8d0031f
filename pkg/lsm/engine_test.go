package lsm_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/lsmkv/pkg/lsm"
	"github.com/dd0wney/lsmkv/pkg/logging"
)

// openTestEngine opens an Engine rooted at a fresh temp directory with small
// thresholds so flush and compaction triggers fire within a handful of
// writes, closing it automatically at test cleanup.
func openTestEngine(t *testing.T, mutate func(*lsm.Options)) *lsm.Engine {
	t.Helper()
	opts := lsm.DefaultOptions(t.TempDir())
	opts.MemtableSizeBytes = 1024
	opts.TargetSSTSize = 4096
	opts.BlockSize = 256
	opts.NumMemtableLimit = 2
	if mutate != nil {
		mutate(&opts)
	}
	require.NoError(t, opts.Validate())

	engine, err := lsm.Open(opts, logging.NewNopLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestEngineCompleteUserWorkflow(t *testing.T) {
	engine := openTestEngine(t, nil)

	t.Log("Step 1: writing keys")
	require.NoError(t, engine.Put([]byte("alice"), []byte("engineer")))
	require.NoError(t, engine.Put([]byte("bob"), []byte("designer")))
	require.NoError(t, engine.Put([]byte("carol"), []byte("manager")))

	t.Log("Step 2: reading them back")
	v, err := engine.Get([]byte("alice"))
	require.NoError(t, err)
	assert.Equal(t, "engineer", string(v))

	t.Log("Step 3: overwriting a key")
	require.NoError(t, engine.Put([]byte("bob"), []byte("staff designer")))
	v, err = engine.Get([]byte("bob"))
	require.NoError(t, err)
	assert.Equal(t, "staff designer", string(v))

	t.Log("Step 4: deleting a key")
	require.NoError(t, engine.Delete([]byte("carol")))
	_, err = engine.Get([]byte("carol"))
	assert.ErrorIs(t, err, lsm.ErrKeyNotFound)

	t.Log("Step 5: scanning the surviving range")
	it, err := engine.Scan([]byte("a"), nil)
	require.NoError(t, err)
	var keys []string
	for it.IsValid() {
		keys = append(keys, string(it.Key()))
		require.NoError(t, it.Next())
	}
	assert.Equal(t, []string{"alice", "bob"}, keys)
}

func TestEnginePutRejectsEmptyKey(t *testing.T) {
	engine := openTestEngine(t, nil)
	assert.ErrorIs(t, engine.Put(nil, []byte("v")), lsm.ErrEmptyKey)
	assert.ErrorIs(t, engine.Delete(nil), lsm.ErrEmptyKey)
}

func TestEngineFlushesUnderMemtablePressure(t *testing.T) {
	engine := openTestEngine(t, nil)

	for i := 0; i < 200; i++ {
		key := []byte("flush-key-" + string(rune('a'+i%26)) + string(rune('0'+i/26)))
		require.NoError(t, engine.Put(key, make([]byte, 64)))
	}

	// With a 1KB memtable threshold and ~200 entries of non-trivial size,
	// at least one flush must have happened by now; every key should still
	// be readable regardless of whether it now lives in an SST or a
	// memtable.
	v, err := engine.Get([]byte("flush-key-a0"))
	require.NoError(t, err)
	assert.Len(t, v, 64)
}

func TestEngineForceFlushNextImmMemtable(t *testing.T) {
	engine := openTestEngine(t, nil)

	require.NoError(t, engine.Put([]byte("k"), []byte("v")))
	assert.ErrorIs(t, engine.ForceFlushNextImmMemtable(), lsm.ErrNoImmutableMemtable)
}

func TestEngineForceFullCompaction(t *testing.T) {
	engine := openTestEngine(t, nil)

	for i := 0; i < 50; i++ {
		key := []byte("key-" + string(rune('a'+i%26)) + string(rune('0'+i/26)))
		require.NoError(t, engine.Put(key, []byte("value")))
	}
	require.NoError(t, engine.Sync())

	require.NoError(t, engine.ForceFullCompaction())

	v, err := engine.Get([]byte("key-a0"))
	require.NoError(t, err)
	assert.Equal(t, "value", string(v))
}

func TestEngineDataSurvivesCloseAndReopen(t *testing.T) {
	dir := t.TempDir()
	opts := lsm.DefaultOptions(dir)
	opts.MemtableSizeBytes = 1 << 30 // large enough that Put never freezes; Close drains the memtable to an SST

	engine, err := lsm.Open(opts, logging.NewNopLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	require.NoError(t, engine.Put([]byte("durable"), []byte("value")))
	require.NoError(t, engine.Sync())
	require.NoError(t, engine.Close())

	reopened, err := lsm.Open(opts, logging.NewNopLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get([]byte("durable"))
	require.NoError(t, err)
	assert.Equal(t, "value", string(v))
}

func TestEngineOperationsAfterCloseFail(t *testing.T) {
	engine := openTestEngine(t, nil)
	require.NoError(t, engine.Close())

	assert.ErrorIs(t, engine.Put([]byte("a"), []byte("b")), lsm.ErrEngineClosed)
	_, err := engine.Get([]byte("a"))
	assert.ErrorIs(t, err, lsm.ErrEngineClosed)
}
