// Package btree implements the paged B+ tree index engine: variable-length
// byte-string keys mapped to 32-bit record identifiers, persisted in a
// fixed 4096-byte-page file.
package btree

import (
	"encoding/binary"
	"fmt"
)

const (
	// PageSize is the fixed size of every page in the index file.
	PageSize = 4096

	// HeaderSize is the size of the fixed page header common to leaf and
	// internal pages: is_leaf(1) + key_count(2) + next_page_id(4).
	HeaderSize = 7

	headerOffLeaf  = 0
	headerOffCount = 1
	headerOffNext  = 3

	// MetadataMagic identifies a valid index file at page 0.
	MetadataMagic = 0x13579BDF

	// MetadataPageID is the fixed page ID of the metadata page.
	MetadataPageID = 0
)

var errPageOverflow = fmt.Errorf("btree: encoded node exceeds %d-byte page", PageSize)

// Node is the in-memory representation of one page's logical contents: an
// ordered key list plus either a value list (leaf) or a child-pointer list
// (internal), one more entry than the key list.
type Node struct {
	PageID     uint32
	IsLeaf     bool
	NextPageID uint32 // leaf sibling chain; 0 for the rightmost leaf and for internal pages

	Keys     [][]byte
	Values   []uint32 // leaf: one value per key
	Children []uint32 // internal: len(Children) == len(Keys)+1
}

// encodedSize returns the number of bytes Node would occupy if serialized,
// without actually allocating the page buffer.
func (n *Node) encodedSize() int {
	size := HeaderSize
	if n.IsLeaf {
		for _, k := range n.Keys {
			size += 2 + len(k) + 4
		}
	} else {
		for _, k := range n.Keys {
			size += 2 + len(k) + 4
		}
		size += 4 // trailing child pointer
	}
	return size
}

// EncodePage serializes n to an exact PageSize-byte page, zero-padding the
// remainder. It fails if the node's entries do not fit in one page; callers
// must split before writing.
func EncodePage(n *Node) ([]byte, error) {
	if n.encodedSize() > PageSize {
		return nil, errPageOverflow
	}

	buf := make([]byte, PageSize)
	if n.IsLeaf {
		buf[headerOffLeaf] = 1
	}
	binary.LittleEndian.PutUint16(buf[headerOffCount:], uint16(len(n.Keys)))
	binary.LittleEndian.PutUint32(buf[headerOffNext:], n.NextPageID)

	off := HeaderSize
	if n.IsLeaf {
		for i, k := range n.Keys {
			binary.LittleEndian.PutUint16(buf[off:], uint16(len(k)))
			off += 2
			off += copy(buf[off:], k)
			binary.LittleEndian.PutUint32(buf[off:], n.Values[i])
			off += 4
		}
	} else {
		for i, k := range n.Keys {
			binary.LittleEndian.PutUint16(buf[off:], uint16(len(k)))
			off += 2
			off += copy(buf[off:], k)
			binary.LittleEndian.PutUint32(buf[off:], n.Children[i])
			off += 4
		}
		binary.LittleEndian.PutUint32(buf[off:], n.Children[len(n.Keys)])
		off += 4
	}
	return buf, nil
}

// DecodePage deserializes a PageSize-byte page into a Node.
func DecodePage(pageID uint32, buf []byte) (*Node, error) {
	if len(buf) != PageSize {
		return nil, fmt.Errorf("btree: page %d: %w", pageID, errInvalidPageLength)
	}

	n := &Node{PageID: pageID}
	n.IsLeaf = buf[headerOffLeaf] == 1
	count := int(binary.LittleEndian.Uint16(buf[headerOffCount:]))
	n.NextPageID = binary.LittleEndian.Uint32(buf[headerOffNext:])

	off := HeaderSize
	n.Keys = make([][]byte, 0, count)
	if n.IsLeaf {
		n.Values = make([]uint32, 0, count)
		for i := 0; i < count; i++ {
			klen := int(binary.LittleEndian.Uint16(buf[off:]))
			off += 2
			key := append([]byte(nil), buf[off:off+klen]...)
			off += klen
			val := binary.LittleEndian.Uint32(buf[off:])
			off += 4
			n.Keys = append(n.Keys, key)
			n.Values = append(n.Values, val)
		}
	} else {
		n.Children = make([]uint32, 0, count+1)
		for i := 0; i < count; i++ {
			klen := int(binary.LittleEndian.Uint16(buf[off:]))
			off += 2
			key := append([]byte(nil), buf[off:off+klen]...)
			off += klen
			child := binary.LittleEndian.Uint32(buf[off:])
			off += 4
			n.Keys = append(n.Keys, key)
			n.Children = append(n.Children, child)
		}
		lastChild := binary.LittleEndian.Uint32(buf[off:])
		n.Children = append(n.Children, lastChild)
	}
	return n, nil
}

var errInvalidPageLength = fmt.Errorf("invalid page length, expected %d bytes", PageSize)
