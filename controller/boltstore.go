package controller

import (
	"encoding/json"
	"fmt"
	"strconv"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store over a single bbolt database file, one
// bucket per namespace.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if absent) the bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) CreateBucket(namespace string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(namespace))
		return err
	})
}

func (s *BoltStore) Create(namespace string, fn func(id string) interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("bucket %q not found", namespace)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id := strconv.FormatUint(seq, 10)
		v := fn(id)
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), raw)
	})
}

func (s *BoltStore) Update(namespace, id string, v interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("bucket %q not found", namespace)
		}
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("key %q not found in %q", id, namespace)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), raw)
	})
}

func (s *BoltStore) Get(namespace, id string, v interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("bucket %q not found", namespace)
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("key %q not found in %q", id, namespace)
		}
		return json.Unmarshal(raw, v)
	})
}

func (s *BoltStore) List(namespace string, fn func(id string, raw []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

func (s *BoltStore) Delete(namespace, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) PutBytes(namespace, key string, blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), blob)
	})
}

func (s *BoltStore) GetBytes(namespace, key string) ([]byte, bool, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		if raw := b.Get([]byte(key)); raw != nil {
			blob = append([]byte(nil), raw...)
		}
		return nil
	})
	return blob, blob != nil, err
}

func (s *BoltStore) Clear(namespace string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(namespace)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(namespace))
		return err
	})
}

func (s *BoltStore) ListKeys(namespace string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
