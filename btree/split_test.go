package btree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwillis/kvengines/common/testutil"
)

func newTestPager(t *testing.T, order int) *Pager {
	t.Helper()
	p, err := OpenPager(filepath.Join(testutil.TempDir(t), "p.db"), order)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSplitLeaf(t *testing.T) {
	p := newTestPager(t, 4)
	left := &Node{
		PageID:     1,
		IsLeaf:     true,
		NextPageID: 99,
		Keys:       [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e")},
		Values:     []uint32{1, 2, 3, 4, 5},
	}

	promote, right, err := splitLeaf(p, left)
	require.NoError(t, err)
	require.Equal(t, []byte("c"), promote)
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, left.Keys)
	require.Equal(t, [][]byte{[]byte("c"), []byte("d"), []byte("e")}, right.Keys)
	require.Equal(t, right.PageID, left.NextPageID)
	require.Equal(t, uint32(99), right.NextPageID)
}

func TestSplitInternal(t *testing.T) {
	p := newTestPager(t, 4)
	left := &Node{
		PageID:   1,
		IsLeaf:   false,
		Keys:     [][]byte{[]byte("b"), []byte("d"), []byte("f"), []byte("h"), []byte("j")},
		Children: []uint32{10, 11, 12, 13, 14, 15},
	}

	promote, right, err := splitInternal(p, left)
	require.NoError(t, err)
	require.Equal(t, []byte("f"), promote)
	require.Equal(t, [][]byte{[]byte("b"), []byte("d")}, left.Keys)
	require.Equal(t, []uint32{10, 11, 12}, left.Children)
	require.Equal(t, [][]byte{[]byte("h"), []byte("j")}, right.Keys)
	require.Equal(t, []uint32{13, 14, 15}, right.Children)
}
