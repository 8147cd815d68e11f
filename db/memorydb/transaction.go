package memorydb

import (
	"sync"

	gasdb "github.com/celer-network/aave-gas-station/db"
)

type txOp struct {
	isSet bool
	key   []byte
	value []byte
}

// Transaction buffers operations and applies them under the db lock on Commit.
type Transaction struct {
	txLock    sync.Mutex
	db        *DB
	ops       []txOp
	isDiscard bool
	isCommit  bool
}

func (tx *Transaction) Set(namespace []byte, key []byte, value []byte) error {
	tx.txLock.Lock()
	defer tx.txLock.Unlock()

	tx.ops = append(tx.ops, txOp{true, gasdb.PrependNamespace(namespace, key), append([]byte{}, value...)})
	return nil
}

func (tx *Transaction) Delete(namespace []byte, key []byte) error {
	tx.txLock.Lock()
	defer tx.txLock.Unlock()

	tx.ops = append(tx.ops, txOp{false, gasdb.PrependNamespace(namespace, key), nil})
	return nil
}

func (tx *Transaction) Commit() error {
	tx.txLock.Lock()
	defer tx.txLock.Unlock()

	if tx.isDiscard {
		return gasdb.ErrTxDiscarded
	} else if tx.isCommit {
		return gasdb.ErrTxCommitted
	}

	tx.db.lock.Lock()
	defer tx.db.lock.Unlock()

	for _, op := range tx.ops {
		if op.isSet {
			tx.db.db[string(op.key)] = op.value
		} else {
			delete(tx.db.db, string(op.key))
		}
	}
	tx.isCommit = true
	return nil
}

func (tx *Transaction) Discard() {
	tx.txLock.Lock()
	defer tx.txLock.Unlock()

	tx.isDiscard = true
}
