package receipt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketName = "receipts"

	// storageKey is the versioned slot holding the whole collection as one JSON
	// array. A schema change means a new key; data under the old key is orphaned.
	storageKey = "receipts_v1"
)

// Store is the durable collection of committed records.
type Store interface {
	// Append inserts a record at the head of the collection (most-recent-first).
	Append(record *Record) error

	// Delete removes the record with the given ID. It is a no-op if absent.
	Delete(id string) error

	// List returns the full ordered collection, most-recent-first.
	List() ([]*Record, error)

	// Close closes the store.
	Close() error
}

// BoltStore implements Store on a bbolt database. The entire collection lives
// under a single versioned key and is rewritten on every mutation, so each
// mutation is O(collection size). Acceptable while the store stays small.
type BoltStore struct {
	db *bbolt.DB

	mu      sync.RWMutex
	records []*Record
}

// NewBoltStore opens (or creates) the database at path and loads the
// collection. If the slot is absent or undecodable the store starts from the
// seed records instead of an empty collection; decode failures are logged,
// never surfaced.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	s := &BoltStore{db: db}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// load reads the collection slot into memory, falling back to seed records.
func (s *BoltStore) load() error {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket([]byte(bucketName)).Get([]byte(storageKey)); data != nil {
			raw = make([]byte, len(data))
			copy(raw, data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading store slot: %w", err)
	}

	if raw == nil {
		s.records = SeedRecords()
		return s.save()
	}

	var records []*Record
	if err := json.Unmarshal(raw, &records); err != nil {
		slog.Error("Failed to decode persisted receipts, falling back to seed data",
			"key", storageKey, "error", err)
		s.records = SeedRecords()
		return s.save()
	}

	s.records = records
	return nil
}

// save writes the full collection through to the slot. Callers hold s.mu.
func (s *BoltStore) save() error {
	data, err := json.Marshal(s.records)
	if err != nil {
		return fmt.Errorf("marshaling receipts: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(storageKey), data)
	})
}

// Append inserts the record at the head of the collection and persists.
// The customer document invariant is enforced here as well as in staging.
func (s *BoltStore) Append(record *Record) error {
	if record.ID == "" {
		return fmt.Errorf("record has no id")
	}
	if record.CustomerDocument == "" {
		return fmt.Errorf("record %s has no customer document", record.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append([]*Record{record}, s.records...)
	if err := s.save(); err != nil {
		s.records = s.records[1:]
		return fmt.Errorf("persisting receipts: %w", err)
	}
	return nil
}

// Delete removes the record with the given ID and persists. Absent IDs are a
// no-op and do not touch the slot.
func (s *BoltStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.records {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}

	removed := s.records[idx]
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	if err := s.save(); err != nil {
		s.records = append(s.records[:idx], append([]*Record{removed}, s.records[idx:]...)...)
		return fmt.Errorf("persisting receipts: %w", err)
	}
	return nil
}

// List returns a copy of the ordered collection, most-recent-first.
func (s *BoltStore) List() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
