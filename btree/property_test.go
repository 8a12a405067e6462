package btree

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/mwillis/kvengines/common/testutil"
)

// walkStructure visits every page reachable from the root and checks the
// tree's structural invariants: every non-root node at or above the
// half-full threshold, every internal node's children count one more than
// its keys, and the leaf chain visiting every key exactly once in
// ascending order.
func walkStructure(t *testing.T, bt *BTree) (leafKeys [][]byte, ok bool) {
	order := bt.pager.Order()
	rootID := uint32(bt.pager.RootPageID())

	var firstLeaf uint32 // page IDs start at 1, so 0 means "not found yet"
	var visit func(id uint32, isRoot bool) bool
	visit = func(id uint32, isRoot bool) bool {
		node, err := bt.pager.GetPage(id)
		if err != nil {
			t.Logf("GetPage(%d): %v", id, err)
			return false
		}
		if !isRoot && node.IsUnderflow(order) {
			t.Logf("page %d underflows: %d keys", id, len(node.Keys))
			return false
		}
		if node.IsLeaf {
			if firstLeaf == 0 {
				firstLeaf = id
			}
			return true
		}
		if len(node.Children) != len(node.Keys)+1 {
			t.Logf("page %d: %d children, %d keys", id, len(node.Children), len(node.Keys))
			return false
		}
		for _, c := range node.Children {
			if !visit(c, false) {
				return false
			}
		}
		return true
	}
	if !visit(rootID, true) {
		return nil, false
	}
	for id := firstLeaf; id != 0; {
		node, err := bt.pager.GetPage(id)
		if err != nil {
			t.Logf("GetPage(%d): %v", id, err)
			return nil, false
		}
		leafKeys = append(leafKeys, node.Keys...)
		id = node.NextPageID
	}
	return leafKeys, true
}

func TestBTreeStructuralInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)

	properties.Property("every insertion sequence leaves a structurally valid tree", prop.ForAll(
		func(n int) bool {
			path := filepath.Join(testutil.TempDir(t), fmt.Sprintf("prop-%d.db", n))
			bt, err := Open(path, 4)
			if err != nil {
				return false
			}
			defer bt.Close()

			for i := 0; i < n; i++ {
				key := []byte(fmt.Sprintf("k%06d", i))
				if err := bt.Insert(key, uint32(i)); err != nil {
					return false
				}
			}

			leafKeys, ok := walkStructure(t, bt)
			if !ok {
				return false
			}
			if len(leafKeys) != n {
				return false
			}
			for i := 1; i < len(leafKeys); i++ {
				if string(leafKeys[i-1]) >= string(leafKeys[i]) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 300),
	))

	properties.TestingRun(t)
}

func TestBTreePageSizeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("every encoded page is exactly PageSize bytes", prop.ForAll(
		func(keys []string, value uint32) bool {
			n := &Node{IsLeaf: true}
			for i, k := range keys {
				if len(k) > 200 {
					k = k[:200]
				}
				n.Keys = append(n.Keys, []byte(k))
				n.Values = append(n.Values, value+uint32(i))
			}
			buf, err := EncodePage(n)
			if err != nil {
				return true // oversized nodes are expected to be rejected, not mis-encoded
			}
			if len(buf) != PageSize {
				return false
			}
			got, err := DecodePage(0, buf)
			if err != nil {
				return false
			}
			if len(got.Keys) != len(n.Keys) {
				return false
			}
			for i := range n.Keys {
				if string(got.Keys[i]) != string(n.Keys[i]) || got.Values[i] != n.Values[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(5, gen.AlphaString()),
		gen.UInt32(),
	))

	properties.TestingRun(t)
}
