package storage

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
)

// levelDB adapts storage/database/leveldb_database.go in the teacher: open
// with bloom-filtered options, recover from corruption on open, fsync each
// write (Put, Delete, batch Write) through the underlying LevelDB write
// path with Sync set.
type levelDB struct {
	fn string
	db *leveldb.DB
	log xlog.Logger
}

func newLevelDB(dir string) (*levelDB, error) {
	logger := xlog.NewModuleLogger("storage.leveldb").NewWith("dir", dir)
	opts := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(dir, opts)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}
	return &levelDB{fn: dir, db: db, log: logger}, nil
}

func (d *levelDB) Type() DBType { return LevelDB }

var syncWrite = &opt.WriteOptions{Sync: true}

func (d *levelDB) Put(key, value []byte) error { return d.db.Put(key, value, syncWrite) }
func (d *levelDB) Has(key []byte) (bool, error) { return d.db.Has(key, nil) }
func (d *levelDB) Get(key []byte) ([]byte, error) { return d.db.Get(key, nil) }
func (d *levelDB) Delete(key []byte) error      { return d.db.Delete(key, syncWrite) }

func (d *levelDB) NewIterator(prefix []byte) Iterator {
	var it iterator.Iterator
	if len(prefix) == 0 {
		it = d.db.NewIterator(nil, nil)
	} else {
		it = d.db.NewIterator(util.BytesPrefix(prefix), nil)
	}
	return &ldbIterator{it: it}
}

type ldbIterator struct{ it iterator.Iterator }

func (i *ldbIterator) Next() bool    { return i.it.Next() }
func (i *ldbIterator) Key() []byte   { return append([]byte(nil), i.it.Key()...) }
func (i *ldbIterator) Value() []byte { return append([]byte(nil), i.it.Value()...) }
func (i *ldbIterator) Release()      { i.it.Release() }

func (d *levelDB) NewBatch() Batch { return &ldbBatch{db: d.db, b: new(leveldb.Batch)} }

func (d *levelDB) Close() {
	if err := d.db.Close(); err != nil {
		d.log.Error("failed to close leveldb", "err", err)
		return
	}
	d.log.Info("leveldb closed")
}

type ldbBatch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *ldbBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}
func (b *ldbBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}
func (b *ldbBatch) Write() error   { return b.db.Write(b.b, syncWrite) }
func (b *ldbBatch) ValueSize() int { return b.size }
func (b *ldbBatch) Reset() {
	b.b.Reset()
	b.size = 0
}
