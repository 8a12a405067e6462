package lsm

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/golang/snappy"

	"github.com/mwillis/kvengines/common"
)

// SSTable is an immutable on-disk sorted mapping, opened read-only after
// publication. File layout:
//
//	[index_offset (8B BE)] [data region: record_len(4B BE) + tuple]* [index region]
//
// Each record's value bytes are snappy-compressed; tombstones carry no
// value bytes at all.
type SSTable struct {
	path       string
	generation int

	keys    []string // ascending, mirrors the on-disk index order
	offsets map[string]uint64
}

// OpenSSTable loads path's trailing index into memory without holding the
// file open between operations.
func OpenSSTable(path string, generation int) (*SSTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lsm: open %s: %w: %v", path, common.ErrIO, err)
	}
	defer f.Close()

	var hdr [8]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("lsm: read index header %s: %w: %v", path, common.ErrFormat, err)
	}
	indexOffset := binary.BigEndian.Uint64(hdr[:])

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("lsm: stat %s: %w", path, err)
	}
	indexBuf := make([]byte, info.Size()-int64(indexOffset))
	if _, err := f.ReadAt(indexBuf, int64(indexOffset)); err != nil {
		return nil, fmt.Errorf("lsm: read index %s: %w: %v", path, common.ErrFormat, err)
	}

	keys, offsets, err := decodeIndex(indexBuf)
	if err != nil {
		return nil, fmt.Errorf("lsm: decode index %s: %w: %v", path, common.ErrFormat, err)
	}
	return &SSTable{path: path, generation: generation, keys: keys, offsets: offsets}, nil
}

func decodeIndex(buf []byte) ([]string, map[string]uint64, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("index too short")
	}
	count := binary.BigEndian.Uint32(buf)
	off := 4
	keys := make([]string, 0, count)
	offsets := make(map[string]uint64, count)
	for i := uint32(0); i < count; i++ {
		if off+2 > len(buf) {
			return nil, nil, fmt.Errorf("truncated index entry")
		}
		klen := int(binary.BigEndian.Uint16(buf[off:]))
		off += 2
		if off+klen+8 > len(buf) {
			return nil, nil, fmt.Errorf("truncated index entry")
		}
		key := string(buf[off : off+klen])
		off += klen
		offset := binary.BigEndian.Uint64(buf[off:])
		off += 8
		keys = append(keys, key)
		offsets[key] = offset
	}
	return keys, offsets, nil
}

// encodeIndex serializes keys (already ascending) and their offsets.
func encodeIndex(order []string, offsets map[string]uint64) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(order)))
	for _, k := range order {
		var hdr [2]byte
		binary.BigEndian.PutUint16(hdr[:], uint16(len(k)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, k...)
		var off [8]byte
		binary.BigEndian.PutUint64(off[:], offsets[k])
		buf = append(buf, off[:]...)
	}
	return buf
}

// encodeRecord serializes one (key, value, tombstone) tuple, the part of
// the data region that follows its 4-byte record_len prefix.
func encodeRecord(key string, value []byte, tombstone bool) []byte {
	buf := make([]byte, 0, 2+len(key)+1+4+len(value))
	var klen [2]byte
	binary.BigEndian.PutUint16(klen[:], uint16(len(key)))
	buf = append(buf, klen[:]...)
	buf = append(buf, key...)
	if tombstone {
		return append(buf, 1)
	}
	buf = append(buf, 0)
	compressed := snappy.Encode(nil, value)
	var vlen [4]byte
	binary.BigEndian.PutUint32(vlen[:], uint32(len(compressed)))
	buf = append(buf, vlen[:]...)
	return append(buf, compressed...)
}

func decodeRecord(buf []byte) (key string, value []byte, tombstone bool, err error) {
	if len(buf) < 3 {
		return "", nil, false, fmt.Errorf("record too short")
	}
	klen := int(binary.BigEndian.Uint16(buf))
	off := 2
	if off+klen+1 > len(buf) {
		return "", nil, false, fmt.Errorf("truncated record key")
	}
	key = string(buf[off : off+klen])
	off += klen
	tombstone = buf[off] != 0
	off++
	if tombstone {
		return key, nil, true, nil
	}
	if off+4 > len(buf) {
		return "", nil, false, fmt.Errorf("truncated record value length")
	}
	vlen := int(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	if off+vlen > len(buf) {
		return "", nil, false, fmt.Errorf("truncated record value")
	}
	value, err = snappy.Decode(nil, buf[off:off+vlen])
	if err != nil {
		return "", nil, false, fmt.Errorf("decompress value: %w", err)
	}
	return key, value, false, nil
}

// Get returns the value for key, or (nil, false, false, nil) if the key is
// not present in this table's index.
func (s *SSTable) Get(key string) (value []byte, tombstone bool, found bool, err error) {
	offset, ok := s.offsets[key]
	if !ok {
		return nil, false, false, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, false, false, fmt.Errorf("lsm: open %s: %w: %v", s.path, common.ErrIO, err)
	}
	defer f.Close()

	var lenBuf [4]byte
	if _, err := f.ReadAt(lenBuf[:], int64(offset)); err != nil {
		return nil, false, false, fmt.Errorf("lsm: read record length %s: %w: %v", s.path, common.ErrIO, err)
	}
	recLen := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, recLen)
	if _, err := f.ReadAt(body, int64(offset)+4); err != nil {
		return nil, false, false, fmt.Errorf("lsm: read record %s: %w: %v", s.path, common.ErrIO, err)
	}

	_, value, tombstone, err = decodeRecord(body)
	if err != nil {
		return nil, false, false, fmt.Errorf("lsm: decode record %s: %w: %v", s.path, common.ErrFormat, err)
	}
	return value, tombstone, true, nil
}

// RangeScan returns every entry with lo <= key <= hi, ascending, reading
// the backing file once for the whole span.
func (s *SSTable) RangeScan(lo, hi string) ([]entry, error) {
	start := sort.SearchStrings(s.keys, lo)
	end := start
	for end < len(s.keys) && s.keys[end] <= hi {
		end++
	}
	return s.readRange(start, end)
}

// AllEntries returns every entry in the table, ascending. Unlike
// RangeScan, it takes no key bound and so cannot silently drop keys at or
// above byte 0x7F the way a bounded ASCII scan would — compaction uses
// this for its full-table merge.
func (s *SSTable) AllEntries() ([]entry, error) {
	return s.readRange(0, len(s.keys))
}

func (s *SSTable) readRange(start, end int) ([]entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("lsm: open %s: %w: %v", s.path, common.ErrIO, err)
	}
	defer f.Close()

	var out []entry
	for i := start; i < end; i++ {
		offset := s.offsets[s.keys[i]]
		var lenBuf [4]byte
		if _, err := f.ReadAt(lenBuf[:], int64(offset)); err != nil {
			return nil, fmt.Errorf("lsm: read record length %s: %w: %v", s.path, common.ErrIO, err)
		}
		recLen := binary.BigEndian.Uint32(lenBuf[:])
		body := make([]byte, recLen)
		if _, err := f.ReadAt(body, int64(offset)+4); err != nil {
			return nil, fmt.Errorf("lsm: read record %s: %w: %v", s.path, common.ErrIO, err)
		}
		key, value, tombstone, err := decodeRecord(body)
		if err != nil {
			return nil, fmt.Errorf("lsm: decode record %s: %w: %v", s.path, common.ErrFormat, err)
		}
		out = append(out, entry{Key: key, Value: value, Tombstone: tombstone})
	}
	return out, nil
}

// Keys returns the sorted key list covered by this table's index.
func (s *SSTable) Keys() []string { return s.keys }

// Path returns the backing file path.
func (s *SSTable) Path() string { return s.path }

// Generation returns this table's generation number.
func (s *SSTable) Generation() int { return s.generation }

// Remove deletes the backing file.
func (s *SSTable) Remove() error {
	if err := os.Remove(s.path); err != nil {
		return fmt.Errorf("lsm: remove %s: %w: %v", s.path, common.ErrIO, err)
	}
	return nil
}
