package badgerdb

import (
	"time"

	"github.com/dgraph-io/badger/v2"

	gasdb "github.com/celer-network/aave-gas-station/db"
)

type Transaction struct {
	tx       *badger.Txn
	createT  time.Time
	setCount uint
	delCount uint
}

func (transaction *Transaction) Set(namespace []byte, key []byte, value []byte) error {
	err := transaction.tx.Set(gasdb.PrependNamespace(namespace, key), gasdb.ConvNilToBytes(value))
	if err != nil {
		return err
	}
	transaction.setCount++
	return nil
}

func (transaction *Transaction) Delete(namespace []byte, key []byte) error {
	err := transaction.tx.Delete(gasdb.PrependNamespace(namespace, key))
	if err != nil {
		return err
	}
	transaction.delCount++
	return nil
}

func (transaction *Transaction) Commit() error {
	err := transaction.tx.Commit()
	logger.Debug().Uint("setCount", transaction.setCount).Uint("delCount", transaction.delCount).
		Dur("elapsed", time.Since(transaction.createT)).Err(err).Msg("Committed badger transaction")
	return err
}

func (transaction *Transaction) Discard() {
	transaction.tx.Discard()
}
