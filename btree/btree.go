package btree

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/mwillis/kvengines/common"
)

// DefaultOrder is tuned for 4 KiB pages: large enough that order+1 children
// and their separator keys fit comfortably in a page for typical key sizes.
const DefaultOrder = 100

// BTree is the top-level handle over one index file. Every method takes an
// internal mutex, so calls on one BTree from several goroutines are
// serialized rather than run concurrently.
type BTree struct {
	mu     sync.Mutex
	pager  *Pager
	closed bool

	stats common.Stats
}

// Open opens path, creating it with a metadata page and an empty root leaf
// if it does not exist; otherwise it validates the magic number and loads
// existing metadata. order is only used on creation.
func Open(path string, order int) (*BTree, error) {
	if order <= 0 {
		order = DefaultOrder
	}
	pager, err := OpenPager(path, order)
	if err != nil {
		return nil, err
	}
	return &BTree{pager: pager}, nil
}

// Insert stores key -> value. Reinserting an existing key is rejected with
// common.ErrDuplicateKey and leaves the tree unchanged.
func (b *BTree) Insert(key []byte, value uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return common.ErrClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("btree: %w: empty key", common.ErrInvalidArgument)
	}

	path, err := b.descend(key)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1]

	if !leaf.insertLeafEntry(key, value) {
		return fmt.Errorf("btree: key %q: %w", key, common.ErrDuplicateKey)
	}
	if err := b.pager.WritePage(leaf); err != nil {
		return err
	}
	b.stats.WriteCount++
	b.stats.NumKeys++

	if leaf.IsOverfull(b.pager.Order()) {
		if err := b.splitAndPromote(path, len(path)-1); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the (0 or 1 element) list of values for key.
func (b *BTree) Search(key []byte) ([]uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, common.ErrClosed
	}
	b.stats.ReadCount++

	leaf, err := b.descendToLeaf(key)
	if err != nil {
		return nil, err
	}
	if idx, found := leaf.search(key); found {
		return []uint32{leaf.Values[idx]}, nil
	}
	return nil, nil
}

// RangeQuery returns, in ascending key order, the values of every key k
// with lo <= k <= hi.
func (b *BTree) RangeQuery(lo, hi []byte) ([]uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, common.ErrClosed
	}
	b.stats.ReadCount++

	leaf, err := b.descendToLeaf(lo)
	if err != nil {
		return nil, err
	}

	var results []uint32
	for leaf != nil {
		for i, k := range leaf.Keys {
			if bytes.Compare(k, lo) < 0 {
				continue
			}
			if bytes.Compare(k, hi) > 0 {
				return results, nil
			}
			results = append(results, leaf.Values[i])
		}
		if leaf.NextPageID == 0 {
			break
		}
		next, err := b.pager.GetPage(leaf.NextPageID)
		if err != nil {
			return nil, err
		}
		leaf = next
	}
	return results, nil
}

// Delete removes key from the tree, rebalancing (redistribute or merge)
// up the path if its leaf underflows. Returns common.ErrKeyNotFound if the
// key is absent.
func (b *BTree) Delete(key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return common.ErrClosed
	}

	path, err := b.descend(key)
	if err != nil {
		return err
	}
	leaf := path[len(path)-1]

	idx, found := leaf.search(key)
	if !found {
		return common.ErrKeyNotFound
	}
	leaf.removeLeafEntry(idx)
	if err := b.pager.WritePage(leaf); err != nil {
		return err
	}
	b.stats.NumKeys--

	return b.fixUnderflow(path, len(path)-1)
}

// Close flushes and closes the underlying file.
func (b *BTree) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.pager.Sync(); err != nil {
		return err
	}
	return b.pager.Close()
}

// Sync fsyncs the underlying file.
func (b *BTree) Sync() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return common.ErrClosed
	}
	return b.pager.Sync()
}

// Stats returns a snapshot of engine counters.
func (b *BTree) Stats() common.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	stats := b.stats
	if pages, err := b.pager.NumPages(); err == nil {
		stats.NumSegments = int(pages)
	}
	return stats
}

// descend walks from the root to the leaf that would contain key,
// recording every page visited (root included) for use by split/merge.
func (b *BTree) descend(key []byte) ([]*Node, error) {
	var path []*Node
	id := uint32(b.pager.RootPageID())
	for {
		node, err := b.pager.GetPage(id)
		if err != nil {
			return nil, err
		}
		path = append(path, node)
		if node.IsLeaf {
			return path, nil
		}
		id = node.Children[node.findChildIndex(key)]
	}
}

func (b *BTree) descendToLeaf(key []byte) (*Node, error) {
	path, err := b.descend(key)
	if err != nil {
		return nil, err
	}
	return path[len(path)-1], nil
}
