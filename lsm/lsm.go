package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/mwillis/kvengines/common"
)

// compactedGeneration is the generation assigned to the single surviving
// table right after a compaction: lower than every flush generation that
// can coexist with it (flushLocked numbers a new table by the current table
// count, and the compacted table already occupies index 0, so later flushes
// get 1 or more), so it sorts as the oldest source and any subsequent flush
// correctly shadows it.
const compactedGeneration = 0

// Options configures an LSMTree.
type Options struct {
	MaxMemtableEntries int
	MaxSSTables        int
}

// DefaultOptions returns a 1000-entry memtable and compaction once more
// than 5 SSTables have accumulated.
func DefaultOptions() Options {
	return Options{MaxMemtableEntries: 1000, MaxSSTables: 5}
}

// LSMTree is the top-level handle over one store directory: memtable +
// WAL/checkpoint durability + a generation-ordered tier of SSTables, all
// guarded by one engine lock. Delete does its work under the lock itself
// rather than calling Set, since a strict (non-reentrant) mutex would
// deadlock.
type LSMTree struct {
	mu   sync.Mutex
	dir  string
	opts Options

	wal      *WALStore
	mem      *MemTable
	sstables []*SSTable // ascending by generation; sstables[len-1] is newest

	closed bool
	stats  common.Stats
}

var sstableFileRe = regexp.MustCompile(`^sstable_(\d+)\.db$`)

// Open opens base as an LSM store directory, creating it if absent, and
// replays any durable state (checkpoint + WAL tail, plus existing
// SSTables) before returning.
func Open(base string, opts Options) (*LSMTree, error) {
	if opts.MaxMemtableEntries <= 0 || opts.MaxSSTables <= 0 {
		opts = DefaultOptions()
	}

	if info, err := os.Stat(base); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("lsm: %s exists as a file: %w", base, common.ErrInvalidArgument)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return nil, fmt.Errorf("lsm: mkdir %s: %w: %v", base, common.ErrIO, err)
		}
	} else {
		return nil, fmt.Errorf("lsm: stat %s: %w", base, err)
	}

	wal, err := OpenWALStore(base)
	if err != nil {
		return nil, err
	}

	mem := NewMemTable(opts.MaxMemtableEntries)
	for k, v := range wal.Snapshot() {
		if v.Tombstone {
			mem.Delete(k)
		} else {
			mem.Put(k, v.Value)
		}
	}

	sstables, err := loadSSTables(base)
	if err != nil {
		wal.Close()
		return nil, err
	}

	return &LSMTree{dir: base, opts: opts, wal: wal, mem: mem, sstables: sstables}, nil
}

func loadSSTables(dir string) ([]*SSTable, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("lsm: readdir %s: %w: %v", dir, common.ErrIO, err)
	}

	var out []*SSTable
	for _, f := range files {
		name := f.Name()
		switch {
		case name == compactedFileName:
			sst, err := OpenSSTable(filepath.Join(dir, name), compactedGeneration)
			if err != nil {
				return nil, err
			}
			out = append(out, sst)
		default:
			m := sstableFileRe.FindStringSubmatch(name)
			if m == nil {
				continue
			}
			gen, _ := strconv.Atoi(m[1])
			sst, err := OpenSSTable(filepath.Join(dir, name), gen)
			if err != nil {
				return nil, err
			}
			out = append(out, sst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Generation() < out[j].Generation() })
	return out, nil
}

// Set stores key -> value, journaling to the WAL before the write becomes
// observable to subsequent reads.
func (t *LSMTree) Set(key string, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setLocked(key, value)
}

func (t *LSMTree) setLocked(key string, value []byte) error {
	if t.closed {
		return common.ErrClosed
	}
	if key == "" {
		return fmt.Errorf("lsm: %w: empty key", common.ErrInvalidArgument)
	}

	if err := t.wal.Set(key, value); err != nil {
		return err
	}
	t.mem.Put(key, value)
	t.stats.WriteCount++

	if t.mem.IsFull() {
		return t.flushLocked()
	}
	return nil
}

// Delete journals a delete and writes a tombstone into the memtable, all
// under one acquisition of the lock rather than re-entering Set (a strict
// mutex would deadlock on the re-entry).
func (t *LSMTree) Delete(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return common.ErrClosed
	}
	if key == "" {
		return fmt.Errorf("lsm: %w: empty key", common.ErrInvalidArgument)
	}

	if err := t.wal.Delete(key); err != nil {
		return err
	}
	t.mem.Delete(key)
	t.stats.WriteCount++

	if t.mem.IsFull() {
		return t.flushLocked()
	}
	return nil
}

// Get returns (value, found). A tombstone counts as "not found" at this
// public boundary; memtable beats all SSTables, and among SSTables higher
// generation beats lower.
func (t *LSMTree) Get(key string) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, false, common.ErrClosed
	}
	t.stats.ReadCount++

	if v, tombstone, found := t.mem.Get(key); found {
		if tombstone {
			return nil, false, nil
		}
		return v, true, nil
	}

	for i := len(t.sstables) - 1; i >= 0; i-- {
		v, tombstone, found, err := t.sstables[i].Get(key)
		if err != nil {
			return nil, false, err
		}
		if found {
			if tombstone {
				return nil, false, nil
			}
			return v, true, nil
		}
	}
	return nil, false, nil
}

// flushLocked allocates a fresh SSTable, writes the current memtable into
// it, replaces the memtable, and checkpoints the WAL (truncating it).
// Compaction follows if the SSTable count now exceeds MaxSSTables. Caller
// must hold mu.
func (t *LSMTree) flushLocked() error {
	gen := len(t.sstables)
	path := filepath.Join(t.dir, fmt.Sprintf("sstable_%d.db", gen))

	sst, err := WriteSSTable(path, t.mem.All(), gen)
	if err != nil {
		return err
	}
	t.sstables = append(t.sstables, sst)
	t.mem = NewMemTable(t.opts.MaxMemtableEntries)

	if err := t.wal.Checkpoint(); err != nil {
		return err
	}

	if len(t.sstables) > t.opts.MaxSSTables {
		return t.compactLocked()
	}
	return nil
}

// compactLocked merges every SSTable into one and triggers the CompactCount
// statistic. Caller must hold mu.
func (t *LSMTree) compactLocked() error {
	merged, err := compact(t.dir, t.sstables)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrCompaction, err)
	}
	t.sstables = []*SSTable{merged}
	t.stats.CompactCount++
	return nil
}

// Compact manually triggers compaction of all current SSTables.
func (t *LSMTree) Compact() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return common.ErrClosed
	}
	if len(t.sstables) <= 1 {
		return nil
	}
	return t.compactLocked()
}

// Sync performs no I/O: Set/Delete already fsync the WAL per write. It
// returns common.ErrClosed after Close.
func (t *LSMTree) Sync() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return common.ErrClosed
	}
	return nil
}

// Stats returns a snapshot of engine counters.
func (t *LSMTree) Stats() common.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.stats
	stats.NumKeys = int64(t.mem.Len())
	stats.NumSegments = len(t.sstables)
	return stats
}

// Close flushes a non-empty memtable and checkpoints the WAL, leaving the
// WAL empty and data.db durable.
func (t *LSMTree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	if t.mem.Len() > 0 {
		if err := t.flushLocked(); err != nil {
			return err
		}
	} else if err := t.wal.Checkpoint(); err != nil {
		return err
	}
	return t.wal.Close()
}
