// Package dbtest holds behaviour checks shared by every db.DB backend.
package dbtest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gasdb "github.com/celer-network/aave-gas-station/db"
)

var (
	nsA = []byte("a")
	nsB = []byte("ab")
)

// Run exercises db. It assumes db is empty.
func Run(t *testing.T, db gasdb.DB) {
	t.Run("SetGetDelete", func(t *testing.T) { testSetGetDelete(t, db) })
	t.Run("Transaction", func(t *testing.T) { testTransaction(t, db) })
	t.Run("Iterate", func(t *testing.T) { testIterate(t, db) })
}

func testSetGetDelete(t *testing.T, db gasdb.DB) {
	_, ok, err := db.Get(nsA, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Set(nsA, []byte("k"), []byte("v")))
	value, ok, err := db.Get(nsA, []byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	// namespaces do not leak into each other
	_, ok, err = db.Get(nsB, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := db.Exist(nsA, []byte("k"))
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, db.Delete(nsA, []byte("k")))
	exists, err = db.Exist(nsA, []byte("k"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func testTransaction(t *testing.T, db gasdb.DB) {
	tx := db.NewTx()
	require.NoError(t, tx.Set(nsA, []byte("t1"), []byte("1")))
	require.NoError(t, tx.Set(nsB, []byte("t2"), []byte("2")))

	exists, err := db.Exist(nsA, []byte("t1"))
	require.NoError(t, err)
	assert.False(t, exists, "writes must be invisible before commit")

	require.NoError(t, tx.Commit())
	for ns, key := range map[string]string{"a": "t1", "ab": "t2"} {
		exists, err := db.Exist([]byte(ns), []byte(key))
		require.NoError(t, err)
		assert.True(t, exists)
	}

	discarded := db.NewTx()
	require.NoError(t, discarded.Set(nsA, []byte("t3"), []byte("3")))
	discarded.Discard()
	exists, err = db.Exist(nsA, []byte("t3"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func testIterate(t *testing.T, db gasdb.DB) {
	require.NoError(t, db.Set(nsA, []byte("w1/02"), []byte("b")))
	require.NoError(t, db.Set(nsA, []byte("w1/01"), []byte("a")))
	require.NoError(t, db.Set(nsA, []byte("w2/01"), []byte("c")))
	require.NoError(t, db.Set(nsB, []byte("w1/03"), []byte("d")))

	var keys, values []string
	err := db.Iterate(nsA, []byte("w1/"), func(key []byte, value []byte) error {
		keys = append(keys, string(key))
		values = append(values, string(value))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"w1/01", "w1/02"}, keys)
	assert.Equal(t, []string{"a", "b"}, values)

	stop := errors.New("stop")
	calls := 0
	err = db.Iterate(nsA, []byte("w"), func(key []byte, value []byte) error {
		calls++
		return stop
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 1, calls)
}
