package badgerdb

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"

	gasdb "github.com/celer-network/aave-gas-station/db"
	"github.com/celer-network/aave-gas-station/log"
)

const (
	badgerDbDiscardRatio   = 0.5 // run gc when 50% of samples can be collected
	badgerDbGcInterval     = 10 * time.Minute
	badgerDbGcSize         = 1 << 20 // 1 MB
	badgerValueLogFileSize = 1<<26 - 1
)

var logger = &extendedLog{Logger: log.NewLogger("db")}

// Enforce database implements interface
var _ gasdb.DB = (*DB)(nil)

type DB struct {
	db         *badger.DB
	ctx        context.Context
	cancelFunc context.CancelFunc
	name       string
}

// NewDB creates a new database or loads an existing one in dir.
func NewDB(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir)

	// sponsorship records are small and rare, keep memory use flat
	opts.ValueLogLoadingMode = options.FileIO
	opts.TableLoadingMode = options.FileIO
	opts.ValueThreshold = 1024
	opts.ValueLogFileSize = badgerValueLogFileSize
	opts.Logger = logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancelFunc := context.WithCancel(context.Background())
	database := &DB{
		db:         db,
		ctx:        ctx,
		cancelFunc: cancelFunc,
		name:       dir,
	}
	go database.runBadgerGC()

	logger.Info().Str("dir", dir).Msg("Opened badger db")
	return database, nil
}

func (db *DB) runBadgerGC() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	lastGcT := time.Now()
	_, lastDbVlogSize := db.db.Size()
	for {
		select {
		case <-ticker.C:
			_, currentDbVlogSize := db.db.Size()

			// gc when the interval passed or the value log stopped growing quickly
			if time.Since(lastGcT) > badgerDbGcInterval || lastDbVlogSize+badgerDbGcSize > currentDbVlogSize {
				startGcT := time.Now()
				err := db.db.RunValueLogGC(badgerDbDiscardRatio)
				switch {
				case errors.Is(err, badger.ErrNoRewrite):
					logger.Debug().Str("name", db.name).Msg("Nothing to GC at badger")
					lastDbVlogSize = currentDbVlogSize
				case err != nil:
					logger.Error().Str("name", db.name).Err(err).Msg("Fail to GC at badger")
					lastDbVlogSize = currentDbVlogSize
				default:
					_, lastDbVlogSize = db.db.Size()
					logger.Debug().Str("name", db.name).Int64("vlogSize", lastDbVlogSize).
						Dur("takenTime", time.Since(startGcT)).Msg("Finish to GC at badger")
				}
				lastGcT = time.Now()
			}
		case <-db.ctx.Done():
			return
		}
	}
}

func (db *DB) Type() string {
	return "badgerdb"
}

func (db *DB) Set(namespace []byte, key []byte, value []byte) error {
	key = gasdb.PrependNamespace(namespace, key)
	value = gasdb.ConvNilToBytes(value)
	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (db *DB) Delete(namespace []byte, key []byte) error {
	key = gasdb.PrependNamespace(namespace, key)
	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (db *DB) Get(namespace []byte, key []byte) ([]byte, bool, error) {
	key = gasdb.PrependNamespace(namespace, key)

	var val []byte
	err := db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (db *DB) Exist(namespace []byte, key []byte) (bool, error) {
	key = gasdb.PrependNamespace(namespace, key)

	err := db.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (db *DB) Iterate(namespace []byte, prefix []byte, fn func(key []byte, value []byte) error) error {
	full := gasdb.PrependNamespace(namespace, prefix)
	return db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = full
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(full); it.ValidForPrefix(full); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(gasdb.StripNamespace(namespace, item.KeyCopy(nil)), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close stops the gc goroutine and closes badger.
func (db *DB) Close() error {
	db.cancelFunc()
	return db.db.Close()
}

func (db *DB) NewTx() gasdb.Transaction {
	return &Transaction{
		tx:      db.db.NewTransaction(true),
		createT: time.Now(),
	}
}
