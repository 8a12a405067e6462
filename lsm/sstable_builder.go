package lsm

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mwillis/kvengines/common"
)

// WriteSSTable writes entries (already in ascending key order, e.g. from
// MemTable.All or a compaction merge) to path atomically: build the whole
// file under a uuid-suffixed temp name, fsync, then rename over the
// destination. If anything fails, the temp file is removed and the
// destination is left untouched.
func WriteSSTable(path string, entries []entry, generation int) (*SSTable, error) {
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.tmp-%s", filepath.Base(path), uuid.NewString()))

	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lsm: create %s: %w: %v", tmp, common.ErrIO, err)
	}

	if err := writeSSTableBody(f, entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("lsm: fsync %s: %w: %v", tmp, common.ErrIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("lsm: close %s: %w: %v", tmp, common.ErrIO, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("lsm: rename %s: %w: %v", tmp, common.ErrIO, err)
	}

	return OpenSSTable(path, generation)
}

func writeSSTableBody(f *os.File, entries []entry) error {
	// Reserve the 8-byte index_offset header; patched once the data
	// region's true length is known.
	if _, err := f.Write(make([]byte, 8)); err != nil {
		return fmt.Errorf("lsm: reserve header: %w: %v", common.WriteErr(err), err)
	}

	order := make([]string, 0, len(entries))
	offsets := make(map[string]uint64, len(entries))
	var cur int64 = 8

	for _, e := range entries {
		rec := encodeRecord(e.Key, e.Value, e.Tombstone)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(rec)))

		offsets[e.Key] = uint64(cur)
		order = append(order, e.Key)

		if _, err := f.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("lsm: write record length: %w: %v", common.WriteErr(err), err)
		}
		if _, err := f.Write(rec); err != nil {
			return fmt.Errorf("lsm: write record: %w: %v", common.WriteErr(err), err)
		}
		cur += int64(len(lenBuf)) + int64(len(rec))
	}

	indexOffset := uint64(cur)
	indexBuf := encodeIndex(order, offsets)
	if _, err := f.Write(indexBuf); err != nil {
		return fmt.Errorf("lsm: write index: %w: %v", common.WriteErr(err), err)
	}

	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], indexOffset)
	if _, err := f.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("lsm: patch header: %w: %v", common.WriteErr(err), err)
	}
	return nil
}
