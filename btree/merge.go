package btree

// fixUnderflow repairs a deficient non-root node at path[idx] by borrowing
// from a sibling (redistribute) or merging with one, recursing up the path
// if the merge leaves the parent deficient in turn. path holds the
// root-to-leaf descent recorded by the caller before mutation began.
func (b *BTree) fixUnderflow(path []*Node, idx int) error {
	if idx == 0 {
		return nil // root has no minimum occupancy
	}

	node := path[idx]
	order := b.pager.Order()
	if !node.IsUnderflow(order) {
		return nil
	}

	parent := path[idx-1]
	childPos := parent.childIndexOf(node.PageID)

	var left, right *Node
	var err error
	if childPos > 0 {
		left, err = b.pager.GetPage(parent.Children[childPos-1])
		if err != nil {
			return err
		}
	}
	if childPos < len(parent.Children)-1 {
		right, err = b.pager.GetPage(parent.Children[childPos+1])
		if err != nil {
			return err
		}
	}

	switch {
	case left != nil && left.CanLend(order):
		return b.redistribute(parent, left, node, childPos-1, node.IsLeaf, true)
	case right != nil && right.CanLend(order):
		return b.redistribute(parent, node, right, childPos, node.IsLeaf, false)
	case left != nil:
		return b.mergeSiblings(path, idx-1, left, node, childPos-1)
	case right != nil:
		return b.mergeSiblings(path, idx-1, node, right, childPos)
	default:
		// Root-child precondition: an only child cannot underflow.
		return nil
	}
}

// redistribute moves one entry across the separator at parent.Keys[sepIdx]
// between left and right, whichever of the two is deficient. fromLeft
// selects the lending direction.
func (b *BTree) redistribute(parent, left, right *Node, sepIdx int, isLeaf, fromLeft bool) error {
	if isLeaf {
		if fromLeft {
			last := len(left.Keys) - 1
			k, v := left.Keys[last], left.Values[last]
			left.Keys = left.Keys[:last]
			left.Values = left.Values[:last]

			right.Keys = append([][]byte{k}, right.Keys...)
			right.Values = append([]uint32{v}, right.Values...)
			parent.Keys[sepIdx] = right.Keys[0]
		} else {
			k, v := right.Keys[0], right.Values[0]
			right.Keys = right.Keys[1:]
			right.Values = right.Values[1:]

			left.Keys = append(left.Keys, k)
			left.Values = append(left.Values, v)
			parent.Keys[sepIdx] = right.Keys[0]
		}
	} else {
		if fromLeft {
			sepKey := parent.Keys[sepIdx]
			lastChild := left.Children[len(left.Children)-1]
			left.Children = left.Children[:len(left.Children)-1]
			promoted := left.Keys[len(left.Keys)-1]
			left.Keys = left.Keys[:len(left.Keys)-1]

			right.Keys = append([][]byte{sepKey}, right.Keys...)
			right.Children = append([]uint32{lastChild}, right.Children...)
			parent.Keys[sepIdx] = promoted
		} else {
			sepKey := parent.Keys[sepIdx]
			firstChild := right.Children[0]
			right.Children = right.Children[1:]
			promoted := right.Keys[0]
			right.Keys = right.Keys[1:]

			left.Keys = append(left.Keys, sepKey)
			left.Children = append(left.Children, firstChild)
			parent.Keys[sepIdx] = promoted
		}
	}

	if err := b.pager.WritePage(left); err != nil {
		return err
	}
	if err := b.pager.WritePage(right); err != nil {
		return err
	}
	return b.pager.WritePage(parent)
}

// mergeSiblings merges right into left across parent's separator at
// sepIdx, freeing right's page, and repairs the parent's own occupancy
// (recursing, or shrinking the tree if parent was the root) via path.
// parentIdx is the index of parent within path.
func (b *BTree) mergeSiblings(path []*Node, parentIdx int, left, right *Node, sepIdx int) error {
	parent := path[parentIdx]

	if left.IsLeaf {
		left.Keys = append(left.Keys, right.Keys...)
		left.Values = append(left.Values, right.Values...)
		left.NextPageID = right.NextPageID
	} else {
		left.Keys = append(left.Keys, parent.Keys[sepIdx])
		left.Keys = append(left.Keys, right.Keys...)
		left.Children = append(left.Children, right.Children...)
	}
	parent.removeInternalEntry(sepIdx, sepIdx+1)

	if err := b.pager.WritePage(left); err != nil {
		return err
	}
	if err := b.pager.FreePage(right.PageID); err != nil {
		return err
	}

	if parentIdx == 0 && len(parent.Keys) == 0 {
		// Parent was the root and is now empty: the merged node becomes
		// the new root, shrinking the tree by one level.
		if err := b.pager.FreePage(parent.PageID); err != nil {
			return err
		}
		return b.pager.UpdateRoot(left.PageID)
	}

	if err := b.pager.WritePage(parent); err != nil {
		return err
	}
	return b.fixUnderflow(path, parentIdx)
}
