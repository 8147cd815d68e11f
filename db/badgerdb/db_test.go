package badgerdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer-network/aave-gas-station/db/dbtest"
)

func TestBadgerDB(t *testing.T) {
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "badgerdb", db.Type())
	dbtest.Run(t, db)
}

func TestBadgerDBReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(dir)
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("ns"), []byte("k"), []byte("v")))
	require.NoError(t, db.Close())

	db, err = NewDB(dir)
	require.NoError(t, err)
	defer db.Close()
	value, ok, err := db.Get([]byte("ns"), []byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), value)
}
