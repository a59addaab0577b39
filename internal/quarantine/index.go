package quarantine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

const entriesBucket = "entries"

// Entry records where a quarantined file came from and where it is held.
type Entry struct {
	ID             string    `json:"id"`
	OriginalPath   string    `json:"original_path"`
	QuarantinePath string    `json:"quarantine_path"`
	RecordedAt     time.Time `json:"recorded_at"`
	SHA256         string    `json:"sha256,omitempty"`
}

// Index is the persistent quarantine ledger. Entries survive restarts so
// list and restore work against files quarantined by earlier runs.
type Index struct {
	db *bolt.DB
}

// OpenIndex opens (or creates) the index database at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open quarantine index: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(entriesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare quarantine index: %w", err)
	}

	return &Index{db: db}, nil
}

// Put stores an entry keyed by its ID, overwriting any previous value.
func (i *Index) Put(e *Entry) error {
	if i.db == nil {
		return ErrIndexClosed
	}

	buf, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode quarantine entry: %w", err)
	}

	return i.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).Put([]byte(e.ID), buf)
	})
}

// Get returns the entry with the given ID, or ErrNotFound.
func (i *Index) Get(id string) (*Entry, error) {
	if i.db == nil {
		return nil, ErrIndexClosed
	}

	var entry *Entry
	err := i.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(entriesBucket)).Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		entry = new(Entry)
		return json.Unmarshal(raw, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns all entries ordered by quarantine time.
func (i *Index) List() ([]Entry, error) {
	if i.db == nil {
		return nil, ErrIndexClosed
	}

	var entries []Entry
	err := i.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).ForEach(func(_, raw []byte) error {
			var e Entry
			if err := json.Unmarshal(raw, &e); err != nil {
				return fmt.Errorf("failed to decode quarantine entry: %w", err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(a, b int) bool {
		return entries[a].RecordedAt.Before(entries[b].RecordedAt)
	})
	return entries, nil
}

// Delete removes the entry with the given ID. Missing IDs are not an error.
func (i *Index) Delete(id string) error {
	if i.db == nil {
		return ErrIndexClosed
	}

	return i.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).Delete([]byte(id))
	})
}

// Close releases the database. Further calls return ErrIndexClosed.
func (i *Index) Close() error {
	if i.db == nil {
		return nil
	}
	err := i.db.Close()
	i.db = nil
	return err
}
