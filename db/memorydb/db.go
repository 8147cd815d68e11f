package memorydb

import (
	"bytes"
	"sort"
	"sync"

	gasdb "github.com/celer-network/aave-gas-station/db"
)

// Enforce database implements interface
var _ gasdb.DB = (*DB)(nil)

// DB keeps everything in a map. It is used by tests and when no data
// directory is configured.
type DB struct {
	lock sync.Mutex
	db   map[string][]byte
}

func NewDB() *DB {
	return &DB{
		db: make(map[string][]byte),
	}
}

func (db *DB) Type() string {
	return "memorydb"
}

func (db *DB) Set(namespace []byte, key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	key = gasdb.PrependNamespace(namespace, key)
	db.db[string(key)] = append([]byte{}, value...)
	return nil
}

func (db *DB) Delete(namespace []byte, key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	delete(db.db, string(gasdb.PrependNamespace(namespace, key)))
	return nil
}

func (db *DB) Get(namespace []byte, key []byte) ([]byte, bool, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	value, exists := db.db[string(gasdb.PrependNamespace(namespace, key))]
	if !exists {
		return nil, false, nil
	}
	return append([]byte{}, value...), true, nil
}

func (db *DB) Exist(namespace []byte, key []byte) (bool, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	_, ok := db.db[string(gasdb.PrependNamespace(namespace, key))]
	return ok, nil
}

func (db *DB) Iterate(namespace []byte, prefix []byte, fn func(key []byte, value []byte) error) error {
	full := gasdb.PrependNamespace(namespace, prefix)

	db.lock.Lock()
	var keys []string
	for k := range db.db {
		if bytes.HasPrefix([]byte(k), full) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = append([]byte{}, db.db[k]...)
	}
	db.lock.Unlock()

	for i, k := range keys {
		if err := fn(gasdb.StripNamespace(namespace, []byte(k)), values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) Close() error {
	return nil
}

func (db *DB) NewTx() gasdb.Transaction {
	return &Transaction{db: db}
}
