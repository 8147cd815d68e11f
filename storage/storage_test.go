package storage

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer-network/aave-gas-station/db/badgerdb"
	"github.com/celer-network/aave-gas-station/db/memorydb"
	"github.com/celer-network/aave-gas-station/gasstation"
	"github.com/celer-network/aave-gas-station/types"
)

var (
	walletA = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	walletB = common.HexToAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
	funder  = common.HexToAddress("0x1e3B9D2e0e4A3c6b1f1e7F9d3E7b4A0d9C2B8F11")
)

func sponsorship(target common.Address, hash byte, started time.Time, state gasstation.State) *gasstation.Sponsorship {
	sp := &gasstation.Sponsorship{
		Target:     target,
		Funder:     funder,
		Nonce:      uint64(hash),
		Value:      big.NewInt(10_000_000_000_000_000),
		TxHash:     common.Hash{hash},
		State:      state,
		StartedAt:  started.UTC(),
		FinishedAt: started.Add(time.Second).UTC(),
	}
	if state == gasstation.StateConfirmed {
		sp.Receipt = &types.Receipt{TxHash: sp.TxHash, BlockNumber: 7, Status: 1, GasUsed: 21000, EffectiveGasPrice: big.NewInt(40)}
	} else {
		sp.Error = "sponsorship failed while broadcast (retryable): timed out waiting for transaction receipt"
	}
	return sp
}

func testStorage(t *testing.T, store *Storage) {
	base := time.Date(2021, 9, 1, 12, 0, 0, 0, time.UTC)
	second := sponsorship(walletA, 2, base.Add(time.Minute), gasstation.StateFailed)
	first := sponsorship(walletA, 1, base, gasstation.StateConfirmed)
	other := sponsorship(walletB, 3, base.Add(30*time.Second), gasstation.StateConfirmed)

	for _, sp := range []*gasstation.Sponsorship{second, first, other} {
		require.NoError(t, store.RecordSponsorship(sp))
	}

	got, err := store.GetSponsorship(first.TxHash)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	_, err = store.GetSponsorship(common.Hash{9})
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := store.ListSponsorships(walletA)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.TxHash, list[0].TxHash)
	assert.Equal(t, second.TxHash, list[1].TxHash)
	assert.Equal(t, gasstation.StateFailed, list[1].State)

	list, err = store.ListSponsorships(walletB)
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = store.ListSponsorships(funder)
	require.NoError(t, err)
	assert.Empty(t, list)

	// same signed transaction again: the first record stays
	dup := sponsorship(walletA, 1, base.Add(time.Hour), gasstation.StateFailed)
	require.NoError(t, store.RecordSponsorship(dup))
	got, err = store.GetSponsorship(first.TxHash)
	require.NoError(t, err)
	assert.Equal(t, gasstation.StateConfirmed, got.State)
	list, err = store.ListSponsorships(walletA)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// the timed out transfer was mined after all
	mined := sponsorship(walletA, 2, base.Add(time.Minute), gasstation.StateConfirmed)
	require.NoError(t, store.RecordSponsorship(mined))
	got, err = store.GetSponsorship(second.TxHash)
	require.NoError(t, err)
	assert.Equal(t, mined, got)
	list, err = store.ListSponsorships(walletA)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, gasstation.StateConfirmed, list[1].State)

	// a confirmed record is never downgraded
	require.NoError(t, store.RecordSponsorship(second))
	got, err = store.GetSponsorship(second.TxHash)
	require.NoError(t, err)
	assert.Equal(t, gasstation.StateConfirmed, got.State)

	assert.Error(t, store.RecordSponsorship(&gasstation.Sponsorship{Target: walletA}))
}

func TestStorageMemoryDB(t *testing.T) {
	testStorage(t, NewStorage(memorydb.NewDB()))
}

func TestStorageBadgerDB(t *testing.T) {
	bdb, err := badgerdb.NewDB(t.TempDir())
	require.NoError(t, err)
	store := NewStorage(bdb)
	defer store.Close()
	testStorage(t, store)
}

func TestWalletKeyLayout(t *testing.T) {
	sp := sponsorship(walletA, 5, time.Unix(0, 0x0102030405060708), gasstation.StateConfirmed)
	key := walletKey(sp)
	require.Len(t, key, common.AddressLength+8+common.HashLength)
	assert.Equal(t, walletA.Bytes(), key[:common.AddressLength])
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, key[common.AddressLength:common.AddressLength+8])
	assert.Equal(t, sp.TxHash.Bytes(), key[common.AddressLength+8:])
}

func TestMalformedIndexKey(t *testing.T) {
	mdb := memorydb.NewDB()
	require.NoError(t, mdb.Set(NamespaceWalletHistory, append(walletA.Bytes(), 1, 2), nil))
	_, err := NewStorage(mdb).ListSponsorships(walletA)
	assert.Error(t, err)
}
