package utils

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/celer-network/aave-gas-station/types"
)

var ErrInvalidAddress = errors.New("invalid address")

// ChecksumAddress parses a 0x-prefixed 20 byte hex address. The returned
// address renders in its EIP-55 mixed-case form via Hex().
func ChecksumAddress(addr string) (common.Address, error) {
	addr = strings.TrimSpace(addr)
	if len(addr) != 2*common.AddressLength+2 || !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return common.HexToAddress(addr), nil
}

func GetPrivateKeyFromKeystore(path string, password string) (*ecdsa.PrivateKey, error) {
	ksBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := keystore.DecryptKey(ksBytes, password)
	if err != nil {
		return nil, err
	}
	return key.PrivateKey, nil
}

// GetPrivateKeyFromHex accepts the key with or without a 0x prefix.
func GetPrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// SignTransaction signs tx as an EIP-1559 transaction and recovers the sender
// from the produced signature.
func SignTransaction(tx *types.PendingTransaction, privateKey *ecdsa.PrivateKey) (*types.SignedTransaction, error) {
	if tx.ChainID == nil || tx.ChainID.Sign() <= 0 {
		return nil, errors.New("chain id is required for signing")
	}
	signer := ethtypes.LatestSignerForChainID(tx.ChainID)
	signed, err := ethtypes.SignTx(tx.ToTransaction(), signer, privateKey)
	if err != nil {
		return nil, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return toSigned(signed, raw)
}

// DecodeSignedTransaction parses raw signed transaction bytes of any supported
// envelope type.
func DecodeSignedTransaction(raw []byte) (*types.SignedTransaction, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return toSigned(tx, common.CopyBytes(raw))
}

func RecoverSender(raw []byte) (common.Address, error) {
	signed, err := DecodeSignedTransaction(raw)
	if err != nil {
		return common.Address{}, err
	}
	return signed.Sender, nil
}

func toSigned(tx *ethtypes.Transaction, raw []byte) (*types.SignedTransaction, error) {
	var signer ethtypes.Signer = ethtypes.HomesteadSigner{}
	if tx.Protected() {
		signer = ethtypes.LatestSignerForChainID(tx.ChainId())
	}
	sender, err := ethtypes.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}
	return &types.SignedTransaction{
		Raw:    raw,
		Hash:   tx.Hash(),
		Sender: sender,
		Nonce:  tx.Nonce(),
		Tx:     tx,
	}, nil
}
