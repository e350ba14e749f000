package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore keeps values in a local bbolt file, one bucket per namespace
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if needed) a bbolt-backed store
func OpenBoltStore(path string) (*BoltStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("bolt store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func boltKey(key Key) []byte {
	return []byte(key.Name + "/" + key.Field)
}

// Get returns a copy of the value stored under key
func (s *BoltStore) Get(_ context.Context, key Key) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(key.Namespace))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get(boltKey(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

// Put writes value under key inside a single update transaction
func (s *BoltStore) Put(_ context.Context, key Key, value []byte, expectAbsent bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(key.Namespace))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", key.Namespace, err)
		}
		if expectAbsent && bucket.Get(boltKey(key)) != nil {
			return ErrAlreadyExists
		}
		return bucket.Put(boltKey(key), value)
	})
}

// Close releases the underlying file
func (s *BoltStore) Close() error {
	return s.db.Close()
}
