package utils

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer-network/aave-gas-station/types"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestChecksumAddress(t *testing.T) {
	lower := "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	addr, err := ChecksumAddress(lower)
	require.NoError(t, err)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", addr.Hex())

	_, err = ChecksumAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1bea")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = ChecksumAddress("5aaeb6053f3e94c9b9a09f33669435e7ef1beaed00")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = ChecksumAddress("0xzzaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestSignAndRecover(t *testing.T) {
	key, err := GetPrivateKeyFromHex("0x" + testKeyHex)
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	pending := &types.PendingTransaction{
		ChainID:   big.NewInt(80001),
		From:      from,
		Nonce:     7,
		To:        common.HexToAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"),
		Value:     big.NewInt(1e17),
		Gas:       21000,
		GasFeeCap: big.NewInt(40e9),
		GasTipCap: big.NewInt(2e9),
	}
	signed, err := SignTransaction(pending, key)
	require.NoError(t, err)
	assert.Equal(t, from, signed.Sender)
	assert.Equal(t, uint64(7), signed.Nonce)

	recovered, err := RecoverSender(signed.Raw)
	require.NoError(t, err)
	assert.Equal(t, from, recovered)

	decoded, err := DecodeSignedTransaction(signed.Raw)
	require.NoError(t, err)
	assert.Equal(t, signed.Hash, decoded.Hash)
	assert.Equal(t, signed.Raw, decoded.Raw)
	require.NotNil(t, decoded.Tx)
	assert.Equal(t, pending.To, *decoded.Tx.To())
	assert.Equal(t, pending.Value, decoded.Tx.Value())
}

func TestSignRequiresChainID(t *testing.T) {
	key, err := GetPrivateKeyFromHex(testKeyHex)
	require.NoError(t, err)
	_, err = SignTransaction(&types.PendingTransaction{}, key)
	assert.Error(t, err)
}

func TestGetPrivateKeyFromKeystore(t *testing.T) {
	key, err := GetPrivateKeyFromHex(testKeyHex)
	require.NoError(t, err)

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.ImportECDSA(key, "secret")
	require.NoError(t, err)

	loaded, err := GetPrivateKeyFromKeystore(account.URL.Path, "secret")
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(loaded.PublicKey))

	_, err = GetPrivateKeyFromKeystore(account.URL.Path, "wrong")
	assert.Error(t, err)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := DecodeSignedTransaction([]byte(strings.Repeat("x", 10)))
	assert.Error(t, err)
}
