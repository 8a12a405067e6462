package btree

import "bytes"

// HalfFull returns the minimum key count a non-root page of the given
// order must hold: ceil((order+1)/2) - 1.
func HalfFull(order int) int {
	return (order+2)/2 - 1
}

// IsOverfull reports the strict overfull condition standardized across both
// the in-memory and on-disk tree designs: len(keys) > order.
func (n *Node) IsOverfull(order int) bool {
	return len(n.Keys) > order
}

// IsUnderflow reports whether a non-root node holds fewer keys than the
// half-full threshold for the given order.
func (n *Node) IsUnderflow(order int) bool {
	return len(n.Keys) < HalfFull(order)
}

// CanLend reports whether n can give up one entry to a deficient sibling
// and remain at or above the half-full threshold.
func (n *Node) CanLend(order int) bool {
	return len(n.Keys) > HalfFull(order)
}

// findChildIndex returns the index of the child to descend into for key:
// the smallest i such that key < keys[i], or the last child if no such key
// exists.
func (n *Node) findChildIndex(key []byte) int {
	for i, k := range n.Keys {
		if bytes.Compare(key, k) < 0 {
			return i
		}
	}
	return len(n.Children) - 1
}

// search returns (index, true) if key is present in a leaf's key list,
// otherwise (insertion point, false).
func (n *Node) search(key []byte) (int, bool) {
	lo, hi := 0, len(n.Keys)
	for lo < hi {
		mid := (lo + hi) / 2
		cmp := bytes.Compare(n.Keys[mid], key)
		if cmp == 0 {
			return mid, true
		} else if cmp < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, false
}

// insertLeafEntry inserts key/value into a leaf at its ordered position.
// Returns false without modifying n if key already exists.
func (n *Node) insertLeafEntry(key []byte, value uint32) bool {
	idx, found := n.search(key)
	if found {
		return false
	}
	n.Keys = append(n.Keys, nil)
	copy(n.Keys[idx+1:], n.Keys[idx:])
	n.Keys[idx] = key

	n.Values = append(n.Values, 0)
	copy(n.Values[idx+1:], n.Values[idx:])
	n.Values[idx] = value
	return true
}

// removeLeafEntry removes the key at idx from a leaf, shifting keys/values down.
func (n *Node) removeLeafEntry(idx int) {
	n.Keys = append(n.Keys[:idx], n.Keys[idx+1:]...)
	n.Values = append(n.Values[:idx], n.Values[idx+1:]...)
}

// insertInternalEntry inserts separator key and its right child at idx,
// shifting keys[idx:] and children[idx+1:] up by one.
func (n *Node) insertInternalEntry(idx int, key []byte, rightChild uint32) {
	n.Keys = append(n.Keys, nil)
	copy(n.Keys[idx+1:], n.Keys[idx:])
	n.Keys[idx] = key

	n.Children = append(n.Children, 0)
	copy(n.Children[idx+2:], n.Children[idx+1:])
	n.Children[idx+1] = rightChild
}

// removeInternalEntry removes separator key at keyIdx and the child pointer
// at childIdx (childIdx is keyIdx or keyIdx+1 depending on merge direction).
func (n *Node) removeInternalEntry(keyIdx, childIdx int) {
	n.Keys = append(n.Keys[:keyIdx], n.Keys[keyIdx+1:]...)
	n.Children = append(n.Children[:childIdx], n.Children[childIdx+1:]...)
}

// childIndexOf returns the index of pageID within n.Children, or -1.
func (n *Node) childIndexOf(pageID uint32) int {
	for i, c := range n.Children {
		if c == pageID {
			return i
		}
	}
	return -1
}
