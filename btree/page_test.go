package btree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePage_LeafRoundTrip(t *testing.T) {
	n := &Node{
		PageID:     3,
		IsLeaf:     true,
		NextPageID: 7,
		Keys:       [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")},
		Values:     []uint32{1, 2, 3},
	}

	buf, err := EncodePage(n)
	require.NoError(t, err)
	require.Len(t, buf, PageSize)

	got, err := DecodePage(3, buf)
	require.NoError(t, err)
	require.Equal(t, n.IsLeaf, got.IsLeaf)
	require.Equal(t, n.NextPageID, got.NextPageID)
	require.Equal(t, n.Keys, got.Keys)
	require.Equal(t, n.Values, got.Values)
}

func TestEncodeDecodePage_InternalRoundTrip(t *testing.T) {
	n := &Node{
		PageID:   5,
		IsLeaf:   false,
		Keys:     [][]byte{[]byte("m")},
		Children: []uint32{10, 11},
	}

	buf, err := EncodePage(n)
	require.NoError(t, err)
	require.Len(t, buf, PageSize)

	got, err := DecodePage(5, buf)
	require.NoError(t, err)
	require.False(t, got.IsLeaf)
	require.Equal(t, uint32(0), got.NextPageID)
	require.Equal(t, n.Keys, got.Keys)
	require.Equal(t, n.Children, got.Children)
}

func TestEncodePage_OverflowRejected(t *testing.T) {
	n := &Node{IsLeaf: true}
	for i := 0; i < 2000; i++ {
		n.Keys = append(n.Keys, []byte("some-reasonably-long-key-value"))
		n.Values = append(n.Values, uint32(i))
	}
	_, err := EncodePage(n)
	require.Error(t, err)
}

func TestMetadataRoundTrip(t *testing.T) {
	m := &Metadata{Order: 100, RootPageID: 42, FreeList: []uint32{2, 5, 9}}
	buf, err := encodeMetadata(m)
	require.NoError(t, err)
	require.Len(t, buf, PageSize)

	got, err := decodeMetadata(buf)
	require.NoError(t, err)
	require.Equal(t, m.Order, got.Order)
	require.Equal(t, m.RootPageID, got.RootPageID)
	require.Equal(t, m.FreeList, got.FreeList)
}
