package lsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemTablePutGetOverwrite(t *testing.T) {
	m := NewMemTable(10)
	m.Put("b", []byte("1"))
	m.Put("a", []byte("2"))
	m.Put("b", []byte("3"))

	v, tombstone, found := m.Get("b")
	require.True(t, found)
	require.False(t, tombstone)
	require.Equal(t, "3", string(v))

	require.Equal(t, 2, m.Len())
}

func TestMemTableDeleteIsTombstone(t *testing.T) {
	m := NewMemTable(10)
	m.Put("a", []byte("1"))
	m.Delete("a")

	_, tombstone, found := m.Get("a")
	require.True(t, found)
	require.True(t, tombstone)
}

func TestMemTableRangeScanOrdered(t *testing.T) {
	m := NewMemTable(10)
	for _, k := range []string{"d", "b", "c", "a", "e"} {
		m.Put(k, []byte(k))
	}

	got := m.RangeScan("b", "d")
	require.Len(t, got, 3)
	require.Equal(t, "b", got[0].Key)
	require.Equal(t, "c", got[1].Key)
	require.Equal(t, "d", got[2].Key)
}

func TestMemTableIsFull(t *testing.T) {
	m := NewMemTable(2)
	require.False(t, m.IsFull())
	m.Put("a", nil)
	require.False(t, m.IsFull())
	m.Put("b", nil)
	require.True(t, m.IsFull())
}
