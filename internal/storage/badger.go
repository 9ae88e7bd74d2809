package storage

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
)

const gcThreshold = int64(1 << 28)
const sizeGCTickerPeriod = 1 * time.Minute

// badgerDB adapts storage/database/badger_database.go in the teacher.
// Badger's per-write transaction commit is the fsync boundary the
// ACID-verify journal relies on: journal.begin/complete each land as one
// committed transaction before the caller proceeds.
type badgerDB struct {
	fn       string
	db       *badger.DB
	log      xlog.Logger
	gcTicker *time.Ticker
	quit     chan struct{}
}

func newBadgerDB(dir string) (*badgerDB, error) {
	logger := xlog.NewModuleLogger("storage.badger").NewWith("dir", dir)

	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return nil, fmt.Errorf("storage: %s exists and is not a directory", dir)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	} else {
		return nil, err
	}

	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	bg := &badgerDB{
		fn:       dir,
		db:       db,
		log:      logger,
		gcTicker: time.NewTicker(sizeGCTickerPeriod),
		quit:     make(chan struct{}),
	}
	go bg.runValueLogGC()
	return bg, nil
}

func (bg *badgerDB) runValueLogGC() {
	_, lastSize := bg.db.Size()
	for {
		select {
		case <-bg.gcTicker.C:
			_, curr := bg.db.Size()
			if curr-lastSize < gcThreshold {
				continue
			}
			if err := bg.db.RunValueLogGC(0.5); err != nil {
				bg.log.Error("value log gc failed", "err", err)
				continue
			}
			_, lastSize = bg.db.Size()
		case <-bg.quit:
			return
		}
	}
}

func (bg *badgerDB) Type() DBType { return Badger }

func (bg *badgerDB) Put(key, value []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Set(key, value); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) Has(key []byte) (bool, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (bg *badgerDB) Get(key []byte) ([]byte, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (bg *badgerDB) Delete(key []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Delete(key); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) NewIterator(prefix []byte) Iterator {
	txn := bg.db.NewTransaction(false)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	if len(prefix) == 0 {
		it.Rewind()
	} else {
		it.Seek(prefix)
	}
	return &badgerIterator{txn: txn, it: it, prefix: prefix, started: false}
}

// badgerIterator adapts badger's seek/valid/next cursor to the storage.Iterator
// Next()-then-Key()/Value() convention shared with the leveldb backend.
type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	started bool
	key     []byte
	value   []byte
}

func (i *badgerIterator) Next() bool {
	if !i.started {
		i.started = true
	} else {
		i.it.Next()
	}
	if !i.it.Valid() {
		return false
	}
	item := i.it.Item()
	if len(i.prefix) > 0 && !bytes.HasPrefix(item.Key(), i.prefix) {
		return false
	}
	i.key = append([]byte(nil), item.Key()...)
	val, err := item.ValueCopy(nil)
	if err != nil {
		return false
	}
	i.value = val
	return true
}

func (i *badgerIterator) Key() []byte   { return i.key }
func (i *badgerIterator) Value() []byte { return i.value }
func (i *badgerIterator) Release() {
	i.it.Close()
	i.txn.Discard()
}

func (bg *badgerDB) NewBatch() Batch {
	return &badgerBatch{db: bg.db, txn: bg.db.NewTransaction(true)}
}

func (bg *badgerDB) Close() {
	close(bg.quit)
	if err := bg.db.Close(); err != nil {
		bg.log.Error("failed to close badger", "err", err)
		return
	}
	bg.log.Info("badger closed")
}

type badgerBatch struct {
	db   *badger.DB
	txn  *badger.Txn
	size int
}

func (b *badgerBatch) Put(key, value []byte) error {
	b.size += len(key) + len(value)
	return b.txn.Set(key, value)
}
func (b *badgerBatch) Delete(key []byte) error {
	b.size += len(key)
	return b.txn.Delete(key)
}
func (b *badgerBatch) Write() error   { return b.txn.Commit(nil) }
func (b *badgerBatch) ValueSize() int { return b.size }
func (b *badgerBatch) Reset() {
	b.txn = b.db.NewTransaction(true)
	b.size = 0
}
