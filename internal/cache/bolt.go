package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "receipt_cache"

// BoltStore implements the Store interface using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the BoltDB file at path
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

	return &BoltStore{db: db}, nil
}

// Get retrieves an entry by key
func (b *BoltStore) Get(_ context.Context, key string) (Entry, error) {
	var entry Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("unmarshaling cache entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Upsert saves an entry, overwriting any previous value for the key
func (b *BoltStore) Upsert(_ context.Context, key string, payload []byte, expiresAt time.Time) error {
	data, err := json.Marshal(Entry{Key: key, Payload: payload, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
