package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"

	"github.com/kuan-lab/kns/kns"
)

const (
	// DefaultSyncWrites is true if all writes are synced to disk, thereby making
	// the db resilient at cost of speed.
	DefaultSyncWrites = false

	// syncInterval is how often buffered writes are synced to disk, bounding
	// data loss if the process crashes between syncs.
	syncInterval = 30 * time.Second
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		kns.Errorf("Unable to make semver in badger: %v\n", err)
	}
	RegisterEngine(badgerEngine{"badger", "BadgerDB", ver})
}

// --- Engine implementation ------

type badgerEngine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e badgerEngine) GetName() string {
	return e.name
}

func (e badgerEngine) GetSemVer() semver.Version {
	return e.semver
}

func (e badgerEngine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewStore returns a badger store.  The config must contain a path.
func (e badgerEngine) NewStore(config StoreConfig) (KeyValueDB, bool, error) {
	return e.newDB(config)
}

func parseConfig(config StoreConfig) (path string, err error) {
	if config.Path == "" {
		return "", fmt.Errorf("%q must be specified for BadgerDB configuration", "path")
	}
	path = config.Path
	if config.Testing {
		path = filepath.Join(os.TempDir(), path)
	}
	return path, nil
}

// Periodically sync to prevent too many writes from being buffered
// if the process crashes.
func syncPeriodically(db *BadgerDB) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			kns.Infof("Stopping sync goroutine for badger @ %s\n", db.directory)
			return
		case <-ticker.C:
			db.bdp.Sync()
		}
	}
}

// newDB returns a Badger backend, creating one at path if it doesn't exist.
func (e badgerEngine) newDB(config StoreConfig) (*BadgerDB, bool, error) {
	path, err := parseConfig(config)
	if err != nil {
		return nil, false, err
	}

	// Is there a database already at this path?  If not, create.
	var created bool
	if _, err := os.Stat(path); os.IsNotExist(err) {
		kns.Infof("Database not already at path (%s). Creating directory...\n", path)
		created = true
		if err := os.MkdirAll(path, 0744); err != nil {
			return nil, true, fmt.Errorf("can't make directory at %s: %v", path, err)
		}
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.NumVersionsToKeep = 1
	opts.SyncWrites = DefaultSyncWrites
	opts.ValueThreshold = 100

	db := &BadgerDB{
		directory:  path,
		config:     config,
		stopSyncCh: make(chan bool),
	}

	kns.Infof("Opening badger @ path %s\n", path)
	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, false, err
	}
	db.bdp = bdp

	go syncPeriodically(db)

	return db, created, nil
}

// --- The BadgerDB implementation of KeyValueDB ----

type BadgerDB struct {
	// Directory of datastore
	directory string

	// Config at time of Open()
	config StoreConfig

	bdp *badger.DB

	// stopSyncCh is used to signal the sync goroutine to stop.
	stopSyncCh chan bool
}

func (db *BadgerDB) String() string {
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Close closes the BadgerDB.
func (db *BadgerDB) Close() {
	if db != nil {
		if db.bdp != nil {
			db.stopSyncCh <- true
			db.bdp.Sync()
			db.bdp.Close()
			kns.Infof("Closed Badger DB @ %s\n", db.directory)
		}
		db.bdp = nil
	}
}

// Get returns a value given a key.  A missing key returns (nil, nil).
func (db *BadgerDB) Get(k []byte) (v []byte, err error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call Get on unopened BadgerDB")
	}
	err = db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	return
}

// Put writes a value with given key.
func (db *BadgerDB) Put(k, v []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Put on unopened BadgerDB")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
}

// Delete removes an entry given key.
func (db *BadgerDB) Delete(k []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Delete on unopened BadgerDB")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// DeletePrefix removes all entries whose keys begin with the given prefix.
func (db *BadgerDB) DeletePrefix(prefix []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call DeletePrefix on unopened BadgerDB")
	}
	var keys [][]byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// ProcessPrefix sends all key-value pairs with the given key prefix, in
// ascending key order, to the passed function.
func (db *BadgerDB) ProcessPrefix(prefix []byte, f func(k, v []byte) error) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call ProcessPrefix on unopened BadgerDB")
	}
	return db.bdp.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := f(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// NewBatch returns a write batch whose mutations commit atomically.
func (db *BadgerDB) NewBatch() Batch {
	return &badgerBatch{txn: db.bdp.NewTransaction(true), db: db.bdp}
}

type badgerBatch struct {
	txn *badger.Txn
	db  *badger.DB
}

func (b *badgerBatch) Put(k, v []byte) error {
	err := b.txn.Set(k, v)
	if err == badger.ErrTxnTooBig {
		if err = b.txn.Commit(); err != nil {
			return err
		}
		b.txn = b.db.NewTransaction(true)
		return b.txn.Set(k, v)
	}
	return err
}

func (b *badgerBatch) Delete(k []byte) error {
	err := b.txn.Delete(k)
	if err == badger.ErrTxnTooBig {
		if err = b.txn.Commit(); err != nil {
			return err
		}
		b.txn = b.db.NewTransaction(true)
		return b.txn.Delete(k)
	}
	return err
}

func (b *badgerBatch) Commit() error {
	defer b.txn.Discard()
	return b.txn.Commit()
}
