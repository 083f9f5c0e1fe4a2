package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/raftd/pkg/raftpb"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketMeta = []byte("meta")
	bucketLog  = []byte("log")

	keyHardState = []byte("hardstate")
)

// BoltStore implements Store over a single bbolt file for HardState and
// the log, plus a separate snapshot file updated by temp-file-then-rename.
type BoltStore struct {
	db      *bolt.DB
	dataDir string
}

// NewBoltStore opens (creating if necessary) the store rooted at dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "raftd.db")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return fmt.Errorf("storage: create meta bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketLog); err != nil {
			return fmt.Errorf("storage: create log bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, dataDir: dataDir}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func indexKey(idx raftpb.Index) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(idx))
	return k[:]
}

func encodeEntry(e raftpb.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (raftpb.Entry, error) {
	var e raftpb.Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return raftpb.Entry{}, err
	}
	return e, nil
}

// Append discards every persisted entry with Index >= startIndex, then
// writes entries, all within a single fsynced bbolt transaction.
func (s *BoltStore) Append(startIndex raftpb.Index, entries []raftpb.Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)

		c := b.Cursor()
		for k, _ := c.Seek(indexKey(startIndex)); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return fmt.Errorf("storage: truncate log: %w", err)
			}
		}

		for _, e := range entries {
			data, err := encodeEntry(e)
			if err != nil {
				return fmt.Errorf("storage: encode entry %d: %w", e.Index, err)
			}
			if err := b.Put(indexKey(e.Index), data); err != nil {
				return fmt.Errorf("storage: put entry %d: %w", e.Index, err)
			}
		}
		return nil
	})
}

// SaveHardState persists hs atomically; bbolt fsyncs on commit.
func (s *BoltStore) SaveHardState(hs raftpb.HardState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(hs); err != nil {
			return fmt.Errorf("storage: encode hard state: %w", err)
		}
		return tx.Bucket(bucketMeta).Put(keyHardState, buf.Bytes())
	})
}

// Compact deletes every persisted log entry with Index <= uptoIndex.
func (s *BoltStore) Compact(uptoIndex raftpb.Index) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			idx := raftpb.Index(binary.BigEndian.Uint64(k))
			if idx > uptoIndex {
				break
			}
			if err := c.Delete(); err != nil {
				return fmt.Errorf("storage: compact entry %d: %w", idx, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) snapshotPath() string {
	return filepath.Join(s.dataDir, "snapshot.bin")
}

// SaveSnapshot writes snap to a temp file in the same directory, fsyncs
// it, renames it into place, then fsyncs the directory — so a crash
// mid-write leaves the prior snapshot (or none) intact, never a torn one.
func (s *BoltStore) SaveSnapshot(snap raftpb.Snapshot) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dataDir, "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("storage: write snapshot temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("storage: fsync snapshot temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: close snapshot temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.snapshotPath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: rename snapshot into place: %w", err)
	}

	dir, err := os.Open(s.dataDir)
	if err != nil {
		return fmt.Errorf("storage: open data dir for fsync: %w", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("storage: fsync data dir: %w", err)
	}

	return nil
}

// LoadAll returns the hard state, snapshot (if any), and every log entry
// strictly after the snapshot's included index.
func (s *BoltStore) LoadAll() (LoadResult, error) {
	var result LoadResult

	if data, err := os.ReadFile(s.snapshotPath()); err == nil {
		var snap raftpb.Snapshot
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
			return LoadResult{}, fmt.Errorf("storage: decode snapshot: %w", err)
		}
		result.Snapshot = &snap
	} else if !os.IsNotExist(err) {
		return LoadResult{}, fmt.Errorf("storage: read snapshot file: %w", err)
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketMeta).Get(keyHardState); data != nil {
			if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&result.HardState); err != nil {
				return fmt.Errorf("storage: decode hard state: %w", err)
			}
		}

		c := tx.Bucket(bucketLog).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			e, err := decodeEntry(v)
			if err != nil {
				return fmt.Errorf("storage: decode log entry: %w", err)
			}
			if result.Snapshot != nil && e.Index <= result.Snapshot.IncludedIndex {
				continue
			}
			result.Entries = append(result.Entries, e)
		}
		return nil
	})
	if err != nil {
		return LoadResult{}, err
	}

	return result, nil
}
