package btree

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/mwillis/kvengines/common"
)

// metaOffMagic, etc. describe the layout of page 0:
//
//	magic(4 LE) order(4 LE) root_page_id(8 LE) free_page_count(4 LE) [free ids (4 LE each)]
const (
	metaOffMagic    = 0
	metaOffOrder    = 4
	metaOffRoot     = 8
	metaOffFreeCnt  = 16
	metaOffFreeList = 20
)

// Metadata is the decoded contents of page 0.
type Metadata struct {
	Order      int
	RootPageID uint64
	FreeList   []uint32
}

func encodeMetadata(m *Metadata) ([]byte, error) {
	buf := make([]byte, PageSize)
	binary.LittleEndian.PutUint32(buf[metaOffMagic:], MetadataMagic)
	binary.LittleEndian.PutUint32(buf[metaOffOrder:], uint32(m.Order))
	binary.LittleEndian.PutUint64(buf[metaOffRoot:], m.RootPageID)
	binary.LittleEndian.PutUint32(buf[metaOffFreeCnt:], uint32(len(m.FreeList)))

	off := metaOffFreeList
	needed := off + len(m.FreeList)*4
	if needed > PageSize {
		return nil, fmt.Errorf("btree: metadata free list too large for page: %w", errPageOverflow)
	}
	for _, id := range m.FreeList {
		binary.LittleEndian.PutUint32(buf[off:], id)
		off += 4
	}
	return buf, nil
}

func decodeMetadata(buf []byte) (*Metadata, error) {
	if len(buf) != PageSize {
		return nil, errInvalidPageLength
	}
	magic := binary.LittleEndian.Uint32(buf[metaOffMagic:])
	if magic != MetadataMagic {
		return nil, fmt.Errorf("btree: %w: bad magic %#x", common.ErrFormat, magic)
	}
	m := &Metadata{
		Order:      int(binary.LittleEndian.Uint32(buf[metaOffOrder:])),
		RootPageID: binary.LittleEndian.Uint64(buf[metaOffRoot:]),
	}
	freeCount := int(binary.LittleEndian.Uint32(buf[metaOffFreeCnt:]))
	off := metaOffFreeList
	m.FreeList = make([]uint32, freeCount)
	for i := 0; i < freeCount; i++ {
		m.FreeList[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	return m, nil
}

// Pager owns the single index file: it reads and writes pages by ID, and
// owns the metadata page (order, root page ID, free list). No caching
// layer is required by the spec; writes are page-aligned and immediately
// visible to subsequent reads through the same Pager.
type Pager struct {
	file *os.File
	meta *Metadata
}

// OpenPager opens path, creating it (with a metadata page and an empty
// root leaf) if it does not already exist.
func OpenPager(path string, order int) (*Pager, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return openExistingPager(path)
	case os.IsNotExist(err):
		return createPager(path, order)
	default:
		return nil, fmt.Errorf("btree: stat %s: %w", path, err)
	}
}

func createPager(path string, order int) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("btree: create %s: %w", path, err)
	}
	p := &Pager{file: f, meta: &Metadata{Order: order, RootPageID: 1}}

	metaBuf, err := encodeMetadata(p.meta)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt(metaBuf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("btree: write metadata: %w", err)
	}

	root := &Node{PageID: 1, IsLeaf: true}
	if err := p.WritePage(root); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("btree: sync %s: %w", path, err)
	}
	return p, nil
}

func openExistingPager(path string) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("btree: open %s: %w", path, err)
	}
	buf := make([]byte, PageSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("btree: read metadata: %w", err)
	}
	meta, err := decodeMetadata(buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Pager{file: f, meta: meta}, nil
}

// Order returns the tree order recorded in the metadata page.
func (p *Pager) Order() int { return p.meta.Order }

// RootPageID returns the current root page ID.
func (p *Pager) RootPageID() uint64 { return p.meta.RootPageID }

// GetPage loads page id from the file and decodes it.
func (p *Pager) GetPage(id uint32) (*Node, error) {
	buf := make([]byte, PageSize)
	if _, err := p.file.ReadAt(buf, int64(id)*PageSize); err != nil {
		return nil, fmt.Errorf("btree: read page %d: %w", id, err)
	}
	return DecodePage(id, buf)
}

// WritePage encodes n and writes it at its page-aligned offset.
func (p *Pager) WritePage(n *Node) error {
	buf, err := EncodePage(n)
	if err != nil {
		return err
	}
	if _, err := p.file.WriteAt(buf, int64(n.PageID)*PageSize); err != nil {
		return fmt.Errorf("btree: write page %d: %w", n.PageID, err)
	}
	return nil
}

// AllocatePage pops a page ID from the free list if one is available,
// otherwise returns the ID just past the end of the file; the file grows
// when that page is first written. The caller must WritePage the new node
// before any other page references it.
func (p *Pager) AllocatePage() (uint32, error) {
	if n := len(p.meta.FreeList); n > 0 {
		id := p.meta.FreeList[n-1]
		p.meta.FreeList = p.meta.FreeList[:n-1]
		if err := p.writeMetadata(); err != nil {
			return 0, err
		}
		return id, nil
	}

	size, err := p.fileSize()
	if err != nil {
		return 0, err
	}
	return uint32(size / PageSize), nil
}

// FreePage appends id to the metadata free list for future reuse. The B+
// index does not coalesce or reclaim pages beyond this list; deletion-time
// rebalancing is the only path that frees pages.
func (p *Pager) FreePage(id uint32) error {
	p.meta.FreeList = append(p.meta.FreeList, id)
	return p.writeMetadata()
}

// UpdateRoot rewrites the root-page field of the metadata page.
func (p *Pager) UpdateRoot(pageID uint32) error {
	p.meta.RootPageID = uint64(pageID)
	return p.writeMetadata()
}

func (p *Pager) writeMetadata() error {
	buf, err := encodeMetadata(p.meta)
	if err != nil {
		return err
	}
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("btree: write metadata: %w", err)
	}
	return nil
}

func (p *Pager) fileSize() (int64, error) {
	info, err := p.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("btree: stat: %w", err)
	}
	return info.Size(), nil
}

// NumPages returns the number of pages currently occupying the file,
// including the metadata page and any freed-but-unreclaimed pages.
func (p *Pager) NumPages() (int64, error) {
	size, err := p.fileSize()
	if err != nil {
		return 0, err
	}
	return size / PageSize, nil
}

// Sync fsyncs the underlying file.
func (p *Pager) Sync() error {
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("btree: sync: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (p *Pager) Close() error {
	return p.file.Close()
}
