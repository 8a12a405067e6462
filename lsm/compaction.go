package lsm

import (
	"fmt"
	"path/filepath"
	"sort"
)

// compactedFileName is the fixed destination compaction publishes to,
// overwriting any previous compaction output.
const compactedFileName = "sstable_compacted.db"

// compact merges every SSTable in tables (already ordered oldest-to-newest
// by generation) into a single new table, keyed ascending. On a key
// collision the later source wins, so the merge iterates oldest-to-newest
// and overwrites. The scan covers the full key range rather than an
// ASCII-only slice, so no key is silently dropped.
func compact(dir string, tables []*SSTable) (*SSTable, error) {
	merged := make(map[string]entry)
	for _, t := range tables {
		entries, err := t.AllEntries()
		if err != nil {
			return nil, fmt.Errorf("lsm: compaction read %s: %w", t.Path(), err)
		}
		for _, e := range entries {
			merged[e.Key] = e
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]entry, len(keys))
	for i, k := range keys {
		ordered[i] = merged[k]
	}

	dest := filepath.Join(dir, compactedFileName)
	out, err := WriteSSTable(dest, ordered, compactedGeneration)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		if t.Path() == dest {
			continue // just overwritten by the rename above
		}
		if err := t.Remove(); err != nil {
			return nil, fmt.Errorf("lsm: unlink stale sstable %s: %w", t.Path(), err)
		}
	}
	return out, nil
}
