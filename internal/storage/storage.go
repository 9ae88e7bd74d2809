// Package storage provides the embedded KV abstraction every persisted
// AutoMine record (config, state, journal, tunnel plan, ore registry, job
// ledger) is written through. It mirrors storage/database/db_manager.go
// in the teacher: one small Database interface, two interchangeable
// backends (goleveldb, badger), and a prefix-scoped table view so callers
// never see another component's keyspace.
package storage

// DBType selects the backing engine, as the teacher's DbTypeFlag does.
type DBType string

const (
	LevelDB DBType = "leveldb"
	Badger  DBType = "badger"
)

// Batch buffers writes for a single atomic commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Write() error
	ValueSize() int
	Reset()
}

// Iterator walks key/value pairs in key order, mirroring goleveldb's
// iterator.Iterator surface closely enough that both backends can satisfy
// it without leaking either engine's native iterator type into callers.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

// Database is the minimal KV surface every AutoMine component needs.
type Database interface {
	Type() DBType
	Put(key, value []byte) error
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	NewBatch() Batch
	Close()
}

// New opens a Database of the requested type rooted at dir.
func New(dbType DBType, dir string) (Database, error) {
	switch dbType {
	case Badger:
		return newBadgerDB(dir)
	default:
		return newLevelDB(dir)
	}
}

// Table returns a view of db whose keys are all implicitly prefixed,
// isolating one component's keyspace from another's (e.g. "journal/",
// "tunnelplan/", "ore/"). Adapted from the teacher's `table` wrapper in
// storage/database/leveldb_database.go.
func Table(db Database, prefix string) Database {
	return &table{db: db, prefix: prefix}
}

type table struct {
	db     Database
	prefix string
}

func (t *table) Type() DBType { return t.db.Type() }

func (t *table) key(k []byte) []byte {
	return append([]byte(t.prefix), k...)
}

func (t *table) Put(key, value []byte) error { return t.db.Put(t.key(key), value) }
func (t *table) Has(key []byte) (bool, error) { return t.db.Has(t.key(key)) }
func (t *table) Get(key []byte) ([]byte, error) { return t.db.Get(t.key(key)) }
func (t *table) Delete(key []byte) error      { return t.db.Delete(t.key(key)) }

func (t *table) NewIterator(prefix []byte) Iterator {
	return &tableIterator{it: t.db.NewIterator(t.key(prefix)), prefixLen: len(t.prefix)}
}

// tableIterator strips the table's key prefix back off so callers see keys
// in their own namespace, the way storage/database/leveldb_database.go's
// `table` wrapper scopes Put/Get/Delete (extended here to iteration).
type tableIterator struct {
	it        Iterator
	prefixLen int
}

func (ti *tableIterator) Next() bool { return ti.it.Next() }
func (ti *tableIterator) Key() []byte {
	k := ti.it.Key()
	if len(k) < ti.prefixLen {
		return k
	}
	return k[ti.prefixLen:]
}
func (ti *tableIterator) Value() []byte { return ti.it.Value() }
func (ti *tableIterator) Release()      { ti.it.Release() }

func (t *table) NewBatch() Batch {
	return &tableBatch{batch: t.db.NewBatch(), prefix: t.prefix}
}

func (t *table) Close() {} // do not close the underlying db

type tableBatch struct {
	batch  Batch
	prefix string
}

func (tb *tableBatch) Put(key, value []byte) error {
	return tb.batch.Put(append([]byte(tb.prefix), key...), value)
}
func (tb *tableBatch) Delete(key []byte) error {
	return tb.batch.Delete(append([]byte(tb.prefix), key...))
}
func (tb *tableBatch) Write() error    { return tb.batch.Write() }
func (tb *tableBatch) ValueSize() int  { return tb.batch.ValueSize() }
func (tb *tableBatch) Reset()          { tb.batch.Reset() }
