package db

// DB is a namespaced key value store.
type DB interface {
	Type() string
	Set(namespace []byte, key []byte, value []byte) error
	Delete(namespace []byte, key []byte) error
	Get(namespace []byte, key []byte) ([]byte, bool, error)
	Exist(namespace []byte, key []byte) (bool, error)
	// Iterate calls fn in key order for every key of namespace starting with
	// prefix. Keys are passed without the namespace. Returning an error from
	// fn stops the iteration and is returned as is.
	Iterate(namespace []byte, prefix []byte, fn func(key []byte, value []byte) error) error
	NewTx() Transaction
	Close() error
}

// Transaction groups writes that must land together.
type Transaction interface {
	Set(namespace []byte, key []byte, value []byte) error
	Delete(namespace []byte, key []byte) error
	Commit() error
	Discard()
}
