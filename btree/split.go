package btree

// splitLeaf splits an overfull leaf node, writing both halves back through
// pager and linking them in key order. It returns the key to promote to
// the parent (the first key of the new right leaf) and the new node.
func splitLeaf(pager *Pager, left *Node) ([]byte, *Node, error) {
	newID, err := pager.AllocatePage()
	if err != nil {
		return nil, nil, err
	}

	mid := len(left.Keys) / 2
	right := &Node{
		PageID:     newID,
		IsLeaf:     true,
		NextPageID: left.NextPageID,
		Keys:       append([][]byte(nil), left.Keys[mid:]...),
		Values:     append([]uint32(nil), left.Values[mid:]...),
	}
	left.Keys = left.Keys[:mid]
	left.Values = left.Values[:mid]
	left.NextPageID = right.PageID

	if err := pager.WritePage(left); err != nil {
		return nil, nil, err
	}
	if err := pager.WritePage(right); err != nil {
		return nil, nil, err
	}
	return right.Keys[0], right, nil
}

// splitInternal splits an overfull internal node. It returns the promoted
// separator key (removed from both halves) and the new right node.
func splitInternal(pager *Pager, left *Node) ([]byte, *Node, error) {
	newID, err := pager.AllocatePage()
	if err != nil {
		return nil, nil, err
	}

	mid := len(left.Keys) / 2
	promote := left.Keys[mid]

	right := &Node{
		PageID:   newID,
		IsLeaf:   false,
		Keys:     append([][]byte(nil), left.Keys[mid+1:]...),
		Children: append([]uint32(nil), left.Children[mid+1:]...),
	}
	left.Keys = left.Keys[:mid]
	left.Children = left.Children[:mid+1]

	if err := pager.WritePage(left); err != nil {
		return nil, nil, err
	}
	if err := pager.WritePage(right); err != nil {
		return nil, nil, err
	}
	return promote, right, nil
}

// splitAndPromote splits cur (already known to be overfull) and threads the
// promoted separator up path[:idx], creating a new root if cur was the root.
// path holds the root-to-leaf descent, cur == path[idx].
func (b *BTree) splitAndPromote(path []*Node, idx int) error {
	cur := path[idx]

	for {
		var promoteKey []byte
		var right *Node
		var err error
		if cur.IsLeaf {
			promoteKey, right, err = splitLeaf(b.pager, cur)
		} else {
			promoteKey, right, err = splitInternal(b.pager, cur)
		}
		if err != nil {
			return err
		}

		parentIdx := idx - 1
		if parentIdx < 0 {
			newRootID, err := b.pager.AllocatePage()
			if err != nil {
				return err
			}
			newRoot := &Node{
				PageID:   newRootID,
				IsLeaf:   false,
				Keys:     [][]byte{promoteKey},
				Children: []uint32{cur.PageID, right.PageID},
			}
			if err := b.pager.WritePage(newRoot); err != nil {
				return err
			}
			return b.pager.UpdateRoot(newRootID)
		}

		parent := path[parentIdx]
		childPos := parent.childIndexOf(cur.PageID)
		parent.insertInternalEntry(childPos, promoteKey, right.PageID)
		if err := b.pager.WritePage(parent); err != nil {
			return err
		}

		if !parent.IsOverfull(b.pager.Order()) {
			return nil
		}
		cur = parent
		idx = parentIdx
	}
}
