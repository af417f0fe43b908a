/*
	Package storage provides a persistent ordered key-value abstraction used
	for the ID pool, the progress ledger, and the block metadata index.
	Engines register themselves on package initialization; BadgerDB is the
	only engine compiled in by default.
*/
package storage

import (
	"fmt"
	"sync"

	"github.com/blang/semver"
)

// StoreConfig configures a single store instance.
type StoreConfig struct {
	// Path is the filesystem directory holding the store.
	Path string

	// Testing, if true, redirects the store into the OS temp directory.
	Testing bool
}

// Engine implementations can create stores.
type Engine interface {
	fmt.Stringer

	// GetName returns a simple driver identifier like "badger".
	GetName() string

	// GetSemVer returns the semantic versioning info.
	GetSemVer() semver.Version

	// NewStore returns a new storage engine given the passed configuration.
	// Returns true for created if the store needed to be created new.
	NewStore(config StoreConfig) (db KeyValueDB, created bool, err error)
}

// KeyValueDB is the interface all engines must satisfy.  Keys are arbitrary
// byte slices ordered lexicographically.
type KeyValueDB interface {
	fmt.Stringer

	// Get returns a value given a key.  A missing key returns (nil, nil).
	Get(k []byte) (v []byte, err error)

	// Put writes a value with given key, overwriting any previous value.
	Put(k, v []byte) error

	// Delete removes an entry given key.  Deleting a missing key is not an error.
	Delete(k []byte) error

	// DeletePrefix removes all entries whose keys begin with the given prefix.
	DeletePrefix(prefix []byte) error

	// ProcessPrefix sends all key-value pairs with the given key prefix, in
	// ascending key order, to the passed function.  A non-nil error from f
	// halts iteration and is returned.
	ProcessPrefix(prefix []byte, f func(k, v []byte) error) error

	// NewBatch returns a write batch whose mutations are applied atomically
	// on Commit.
	NewBatch() Batch

	// Close closes the store.
	Close()
}

// Batch groups write operations so they commit atomically.
type Batch interface {
	Put(k, v []byte) error
	Delete(k []byte) error

	// Commit flushes the batch.  The batch cannot be used afterwards.
	Commit() error
}

var (
	enginesMu sync.Mutex
	engines   map[string]Engine
)

// RegisterEngine registers an engine for database creation.
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	if engines == nil {
		engines = make(map[string]Engine)
	}
	engines[e.GetName()] = e
}

// GetEngine returns an Engine of the given name.
func GetEngine(name string) Engine {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	return engines[name]
}

// NewStore checks if a given engine is available and if so, returns a store
// opened with the given configuration.
func NewStore(engineName string, config StoreConfig) (db KeyValueDB, created bool, err error) {
	e := GetEngine(engineName)
	if e == nil {
		return nil, false, fmt.Errorf("could not find storage engine %q", engineName)
	}
	return e.NewStore(config)
}
