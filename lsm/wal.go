package lsm

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mwillis/kvengines/common"
)

// walOp is the operation kind recorded in a WAL line.
type walOp string

const (
	walOpSet    walOp = "set"
	walOpDelete walOp = "delete"
)

// walLine is the JSON shape of one WAL entry: one JSON object per line.
// Value is carried as base64 text so arbitrary byte payloads survive JSON
// encoding; Timestamp is diagnostic only, never used for ordering (file
// order is authoritative).
type walLine struct {
	Timestamp string `json:"timestamp"`
	Operation walOp  `json:"operation"`
	Key       string `json:"key"`
	Value     string `json:"value,omitempty"`
}

// snapshotEntry is the persisted form of one key in data.db.
type snapshotEntry struct {
	Value     []byte `json:"value,omitempty"`
	Tombstone bool   `json:"tombstone,omitempty"`
}

// WALStore is the durability controller: it owns the WAL file plus a
// checkpointed snapshot (data.db) and drives recovery at startup by
// loading the snapshot and replaying the WAL tail.
type WALStore struct {
	dir      string
	walPath  string
	dataPath string

	walFile *os.File
	state   map[string]snapshotEntry
}

// OpenWALStore opens (or initializes) the WAL and snapshot under dir,
// replaying any WAL tail left from an unclean shutdown.
func OpenWALStore(dir string) (*WALStore, error) {
	s := &WALStore{
		dir:      dir,
		walPath:  filepath.Join(dir, "wal.log"),
		dataPath: filepath.Join(dir, "data.db"),
		state:    make(map[string]snapshotEntry),
	}

	if _, err := os.Stat(s.dataPath); err == nil {
		if err := s.loadSnapshot(); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("lsm: stat %s: %w", s.dataPath, err)
	}

	if _, err := os.Stat(s.walPath); err == nil {
		if err := s.replayWAL(); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("lsm: stat %s: %w", s.walPath, err)
	}

	f, err := os.OpenFile(s.walPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lsm: open %s: %w", s.walPath, err)
	}
	s.walFile = f
	return s, nil
}

func (s *WALStore) loadSnapshot() error {
	data, err := os.ReadFile(s.dataPath)
	if err != nil {
		return fmt.Errorf("lsm: read %s: %w", s.dataPath, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return fmt.Errorf("lsm: decode %s: %w: %v", s.dataPath, common.ErrRecovery, err)
	}
	return nil
}

func (s *WALStore) replayWAL() error {
	f, err := os.Open(s.walPath)
	if err != nil {
		return fmt.Errorf("lsm: open %s: %w", s.walPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec walLine
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("lsm: malformed WAL line: %w: %v", common.ErrRecovery, err)
		}
		if err := s.applyLine(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("lsm: scan %s: %w: %v", s.walPath, common.ErrRecovery, err)
	}
	return nil
}

func (s *WALStore) applyLine(rec walLine) error {
	switch rec.Operation {
	case walOpSet:
		val, err := base64.StdEncoding.DecodeString(rec.Value)
		if err != nil {
			return fmt.Errorf("lsm: malformed WAL value: %w: %v", common.ErrRecovery, err)
		}
		s.state[rec.Key] = snapshotEntry{Value: val}
	case walOpDelete:
		s.state[rec.Key] = snapshotEntry{Tombstone: true}
	default:
		return fmt.Errorf("lsm: unknown WAL operation %q: %w", rec.Operation, common.ErrRecovery)
	}
	return nil
}

// Set journals a "set" line (fsync'd before returning) and updates the
// in-memory snapshot buffer.
func (s *WALStore) Set(key string, value []byte) error {
	rec := walLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: walOpSet,
		Key:       key,
		Value:     base64.StdEncoding.EncodeToString(value),
	}
	if err := s.appendLine(rec); err != nil {
		return err
	}
	s.state[key] = snapshotEntry{Value: value}
	return nil
}

// Delete journals a "delete" line (fsync'd before returning) and updates
// the in-memory snapshot buffer.
func (s *WALStore) Delete(key string) error {
	rec := walLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: walOpDelete,
		Key:       key,
	}
	if err := s.appendLine(rec); err != nil {
		return err
	}
	s.state[key] = snapshotEntry{Tombstone: true}
	return nil
}

func (s *WALStore) appendLine(rec walLine) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("lsm: encode WAL line: %w", err)
	}
	buf = append(buf, '\n')
	if _, err := s.walFile.Write(buf); err != nil {
		return fmt.Errorf("lsm: append WAL: %w: %v", common.WriteErr(err), err)
	}
	if err := s.walFile.Sync(); err != nil {
		return fmt.Errorf("lsm: fsync WAL: %w: %v", common.ErrIO, err)
	}
	return nil
}

// Checkpoint serializes the in-memory snapshot to data.db via an atomic
// temp-file rename, then truncates the WAL. The rename happens before the
// truncate so a crash in between is safe: recovery simply replays a WAL
// tail that is idempotent on set/delete.
func (s *WALStore) Checkpoint() error {
	buf, err := json.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("lsm: encode snapshot: %w", err)
	}

	tmp := filepath.Join(s.dir, fmt.Sprintf("data.db.tmp-%s", uuid.NewString()))
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("lsm: write temp snapshot: %w: %v", common.WriteErr(err), err)
	}
	tf, err := os.OpenFile(tmp, os.O_RDWR, 0o644)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("lsm: reopen temp snapshot: %w: %v", common.ErrIO, err)
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		os.Remove(tmp)
		return fmt.Errorf("lsm: fsync temp snapshot: %w: %v", common.ErrIO, err)
	}
	tf.Close()

	if err := os.Rename(tmp, s.dataPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("lsm: rename snapshot: %w: %v", common.ErrIO, err)
	}

	if err := s.walFile.Truncate(0); err != nil {
		return fmt.Errorf("lsm: truncate WAL: %w: %v", common.ErrIO, err)
	}
	if _, err := s.walFile.Seek(0, 0); err != nil {
		return fmt.Errorf("lsm: seek WAL: %w: %v", common.ErrIO, err)
	}
	if err := s.walFile.Sync(); err != nil {
		return fmt.Errorf("lsm: fsync WAL truncate: %w: %v", common.ErrIO, err)
	}
	return nil
}

// Snapshot returns a defensive copy of the current in-memory state, used
// by LSMTree to seed a fresh MemTable on open.
func (s *WALStore) Snapshot() map[string]snapshotEntry {
	out := make(map[string]snapshotEntry, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// Close closes the WAL file handle.
func (s *WALStore) Close() error {
	return s.walFile.Close()
}
