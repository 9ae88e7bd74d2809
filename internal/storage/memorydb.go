package storage

import (
	"bytes"
	"sort"
	"sync"
)

// memoryDB is a map-backed Database used by component tests so they don't
// need a real goleveldb/badger directory on disk, the way the teacher's
// ethdb/memorydb stands in for a real engine in unit tests.
type memoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory Database.
func NewMemory() Database {
	return &memoryDB{data: make(map[string][]byte)}
}

func (m *memoryDB) Type() DBType { return "memory" }

func (m *memoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), value...)
	m.data[string(key)] = cp
	return nil
}

func (m *memoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *memoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, errNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *memoryDB) NewIterator(prefix []byte) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = m.data[k]
	}
	return &memIterator{keys: keys, values: values, pos: -1}
}

func (m *memoryDB) NewBatch() Batch {
	return &memBatch{db: m}
}

func (m *memoryDB) Close() {}

type memIterator struct {
	keys   []string
	values [][]byte
	pos    int
}

func (it *memIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}
func (it *memIterator) Key() []byte   { return []byte(it.keys[it.pos]) }
func (it *memIterator) Value() []byte { return it.values[it.pos] }
func (it *memIterator) Release()      {}

type memOp struct {
	del   bool
	key   []byte
	value []byte
}

type memBatch struct {
	db   *memoryDB
	ops  []memOp
	size int
}

func (b *memBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, memOp{key: key, value: value})
	b.size += len(key) + len(value)
	return nil
}
func (b *memBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memOp{del: true, key: key})
	b.size += len(key)
	return nil
}
func (b *memBatch) ValueSize() int { return b.size }
func (b *memBatch) Reset() {
	b.ops = nil
	b.size = 0
}
func (b *memBatch) Write() error {
	for _, op := range b.ops {
		if op.del {
			if err := b.db.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := b.db.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "storage: key not found" }

var errNotFound error = notFoundErr{}
