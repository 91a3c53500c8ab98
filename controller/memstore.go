package controller

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// MemStore is an in-memory Store used by controller/modules/* unit
// tests so they don't need a bbolt file on disk — same namespace/key
// semantics as BoltStore.
type MemStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	seq     map[string]uint64
}

func NewMemStore() *MemStore {
	return &MemStore{
		buckets: make(map[string]map[string][]byte),
		seq:     make(map[string]uint64),
	}
}

func (m *MemStore) CreateBucket(namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[namespace] == nil {
		m.buckets[namespace] = make(map[string][]byte)
	}
	return nil
}

func (m *MemStore) Create(namespace string, fn func(id string) interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.buckets[namespace]
	if b == nil {
		b = make(map[string][]byte)
		m.buckets[namespace] = b
	}
	m.seq[namespace]++
	id := strconv.FormatUint(m.seq[namespace], 10)
	raw, err := json.Marshal(fn(id))
	if err != nil {
		return err
	}
	b[id] = raw
	return nil
}

func (m *MemStore) Update(namespace, id string, v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.buckets[namespace]
	if b == nil || b[id] == nil {
		return fmt.Errorf("key %q not found in %q", id, namespace)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b[id] = raw
	return nil
}

func (m *MemStore) Get(namespace, id string, v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.buckets[namespace]
	if b == nil || b[id] == nil {
		return fmt.Errorf("key %q not found in %q", id, namespace)
	}
	return json.Unmarshal(b[id], v)
}

func (m *MemStore) List(namespace string, fn func(id string, raw []byte) error) error {
	m.mu.Lock()
	b := m.buckets[namespace]
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([][]byte, len(keys))
	for i, k := range keys {
		vals[i] = b[k]
	}
	m.mu.Unlock()

	for i, k := range keys {
		if err := fn(k, vals[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) Delete(namespace, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[namespace], id)
	return nil
}

func (m *MemStore) PutBytes(namespace, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.buckets[namespace]
	if b == nil {
		b = make(map[string][]byte)
		m.buckets[namespace] = b
	}
	b[key] = append([]byte(nil), blob...)
	return nil
}

func (m *MemStore) GetBytes(namespace, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.buckets[namespace]
	if b == nil {
		return nil, false, nil
	}
	raw, ok := b[key]
	return raw, ok, nil
}

func (m *MemStore) Clear(namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[namespace] = make(map[string][]byte)
	return nil
}

func (m *MemStore) ListKeys(namespace string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.buckets[namespace]
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
