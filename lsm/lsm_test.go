package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwillis/kvengines/common"
	"github.com/mwillis/kvengines/common/testutil"
)

func openTestTree(t *testing.T, opts Options) *LSMTree {
	t.Helper()
	dir := filepath.Join(testutil.TempDir(t), "store")
	tree, err := Open(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { tree.Close() })
	return tree
}

func drain(t *testing.T, it common.Iterator) [][2]string {
	t.Helper()
	var out [][2]string
	for it.Next() {
		out = append(out, [2]string{string(it.Key()), string(it.Value())})
	}
	require.NoError(t, it.Error())
	return out
}

func TestSetGetRangeOrdered(t *testing.T) {
	tree := openTestTree(t, DefaultOptions())

	require.NoError(t, tree.Set("a", []byte("1")))
	require.NoError(t, tree.Set("b", []byte("2")))
	require.NoError(t, tree.Set("c", []byte("3")))

	v, found, err := tree.Get("b")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2", string(v))

	it, err := tree.RangeQuery("a", "c")
	require.NoError(t, err)
	got := drain(t, it)
	require.Equal(t, [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}, got)
}

func TestFlushOnMemtableFull(t *testing.T) {
	tree := openTestTree(t, Options{MaxMemtableEntries: 100, MaxSSTables: 5})

	for i := 0; i < 1500; i++ {
		require.NoError(t, tree.Set(fmt.Sprintf("k%d", i), []byte(fmt.Sprintf("%d", i))))
	}
	require.Greater(t, tree.Stats().NumSegments, 0)

	v, found, err := tree.Get("k0")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "0", string(v))

	v, found, err = tree.Get("k1499")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1499", string(v))
}

// TestCompactionCollapsesToSingleTable writes enough entries to force
// compaction and checks exactly one surviving SSTable file, all keys still
// readable.
func TestCompactionCollapsesToSingleTable(t *testing.T) {
	dir := filepath.Join(testutil.TempDir(t), "store")
	tree, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer tree.Close()

	const n = 6000
	for i := 0; i < n; i++ {
		require.NoError(t, tree.Set(fmt.Sprintf("key-%05d", i), []byte(fmt.Sprintf("v%d", i))))
	}

	require.Equal(t, 1, tree.Stats().NumSegments)
	require.Equal(t, 1, len(tree.sstables))
	require.Equal(t, compactedFileName, filepath.Base(tree.sstables[0].Path()))

	for i := 0; i < n; i += 777 {
		key := fmt.Sprintf("key-%05d", i)
		v, found, err := tree.Get(key)
		require.NoError(t, err)
		require.True(t, found, key)
		require.Equal(t, fmt.Sprintf("v%d", i), string(v))
	}
}

// TestCrashRecoveryReplaysWAL checks that uncheckpointed writes survive a
// reopen via WAL replay.
func TestCrashRecoveryReplaysWAL(t *testing.T) {
	dir := filepath.Join(testutil.TempDir(t), "store")
	tree, err := Open(dir, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, tree.Set("x", []byte("1")))
	require.NoError(t, tree.Set("y", []byte("2")))
	// Simulate a crash: no Close(), WAL was fsync'd per write.
	require.NoError(t, tree.wal.walFile.Close())

	reopened, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer reopened.Close()

	v, found, err := reopened.Get("x")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", string(v))

	v, found, err = reopened.Get("y")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2", string(v))
}

func TestOverwrite(t *testing.T) {
	tree := openTestTree(t, DefaultOptions())
	require.NoError(t, tree.Set("k", []byte("v1")))
	require.NoError(t, tree.Set("k", []byte("v2")))

	v, found, err := tree.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v2", string(v))
}

func TestDeleteAfterSet(t *testing.T) {
	tree := openTestTree(t, DefaultOptions())
	require.NoError(t, tree.Set("k", []byte("v1")))
	require.NoError(t, tree.Delete("k"))

	_, found, err := tree.Get("k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestNewestWinsAcrossMemtableAndSSTables(t *testing.T) {
	tree := openTestTree(t, Options{MaxMemtableEntries: 1, MaxSSTables: 100})

	require.NoError(t, tree.Set("k", []byte("gen0")))  // flushes to sstable_0.db
	require.NoError(t, tree.Set("k", []byte("gen1")))  // flushes to sstable_1.db
	require.NoError(t, tree.Set("other", []byte("x"))) // flushes to sstable_2.db, leaving the memtable empty
	tree.mem.Put("k", []byte("memtable-value"))

	v, found, err := tree.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "memtable-value", string(v))

	require.NoError(t, tree.Compact())
	v, found, err = tree.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "memtable-value", string(v))
}

func TestOpenRejectsFileAsBasePath(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Open(path, DefaultOptions())
	require.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestRangeQuerySkipsDeletedKeys(t *testing.T) {
	tree := openTestTree(t, DefaultOptions())
	require.NoError(t, tree.Set("a", []byte("1")))
	require.NoError(t, tree.Set("b", []byte("2")))
	require.NoError(t, tree.Delete("b"))
	require.NoError(t, tree.Set("c", []byte("3")))

	it, err := tree.RangeQuery("a", "c")
	require.NoError(t, err)
	got := drain(t, it)
	require.Equal(t, [][2]string{{"a", "1"}, {"c", "3"}}, got)
}
