// Package store persists dispatch history in a bolt database: an append-only
// archive of commit records plus a small shared key-value bucket for state
// snapshots and other values effects want to keep across runs.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketCommits = "commits"
	bucketShared  = "shared"
)

// ErrNoEntry is returned when no archive entry exists at a position.
var ErrNoEntry = errors.New("store: no entry at that position")

// ErrNoKey is returned by Get when the shared bucket has no such key.
var ErrNoKey = errors.New("store: no such key")

// Store is a bolt-backed archive. It is safe for concurrent use; bolt
// serializes writers internally.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path and initializes its buckets.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketCommits, bucketShared} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Entry is one archived commit. Pos is the archive position, monotonic
// across process runs; Seq is the runtime's commit sequence, which restarts
// at one each run.
type Entry struct {
	Pos   uint64          `json:"pos"`
	Seq   uint64          `json:"seq"`
	At    time.Time       `json:"at"`
	State json.RawMessage `json:"state"`
}

// Append archives one commit and returns its position.
func (s *Store) Append(seq uint64, at time.Time, state any) (uint64, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("marshal state: %w", err)
	}
	var pos uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCommits))
		pos, err = b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(Entry{Pos: pos, Seq: seq, At: at, State: payload})
		if err != nil {
			return err
		}
		return b.Put(marshalPos(pos), data)
	})
	if err != nil {
		return 0, err
	}
	return pos, nil
}

// EntryAt returns the archive entry at pos.
func (s *Store) EntryAt(pos uint64) (Entry, error) {
	var entry Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCommits))
		v := b.Get(marshalPos(pos))
		if v == nil {
			return ErrNoEntry
		}
		return json.Unmarshal(v, &entry)
	})
	return entry, err
}

// Entries calls f for every archive entry with from <= pos < upto, in
// position order.
func (s *Store) Entries(from, upto uint64, f func(Entry)) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketCommits)).Cursor()
		for k, v := c.Seek(marshalPos(from)); k != nil && unmarshalPos(k) < upto; k, v = c.Next() {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			f(entry)
		}
		return nil
	})
}

// NextPos returns the position the next Append will receive.
func (s *Store) NextPos() (uint64, error) {
	var pos uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		pos = tx.Bucket([]byte(bucketCommits)).Sequence() + 1
		return nil
	})
	return pos, err
}

// Set stores value under key in the shared bucket, JSON-encoded.
func (s *Store) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketShared)).Put([]byte(key), data)
	})
}

// Get loads the value stored under key into out. Returns ErrNoKey when the
// key has never been set.
func (s *Store) Get(key string, out any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketShared)).Get([]byte(key))
		if v == nil {
			return ErrNoKey
		}
		return json.Unmarshal(v, out)
	})
}

// Del removes key from the shared bucket. Deleting an absent key is not an
// error.
func (s *Store) Del(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketShared)).Delete([]byte(key))
	})
}

func marshalPos(pos uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, pos)
	return b
}

func unmarshalPos(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}
