package types

import (
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// PendingTransaction is an unsigned EIP-1559 transaction descriptor.
// Builders return a fresh value; callers should not mutate it after it has
// been handed out, use WithGas to derive a copy instead.
type PendingTransaction struct {
	ChainID   *big.Int
	From      common.Address
	Nonce     uint64
	To        common.Address
	Value     *big.Int
	Gas       uint64
	GasFeeCap *big.Int
	GasTipCap *big.Int
	Data      []byte
}

// WithGas returns a copy of the transaction with a different gas limit.
func (tx *PendingTransaction) WithGas(gas uint64) *PendingTransaction {
	cpy := *tx
	cpy.Gas = gas
	return &cpy
}

// ToTransaction converts the descriptor into a go-ethereum dynamic fee transaction.
func (tx *PendingTransaction) ToTransaction() *ethtypes.Transaction {
	to := tx.To
	return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   bigOrZero(tx.ChainID),
		Nonce:     tx.Nonce,
		GasTipCap: bigOrZero(tx.GasTipCap),
		GasFeeCap: bigOrZero(tx.GasFeeCap),
		Gas:       tx.Gas,
		To:        &to,
		Value:     bigOrZero(tx.Value),
		Data:      common.CopyBytes(tx.Data),
	})
}

// CallMsg returns the message used to simulate the transaction. The gas limit
// is left open so that the simulation is not capped by a stale estimate.
func (tx *PendingTransaction) CallMsg() ethereum.CallMsg {
	to := tx.To
	return ethereum.CallMsg{
		From:      tx.From,
		To:        &to,
		GasFeeCap: tx.GasFeeCap,
		GasTipCap: tx.GasTipCap,
		Value:     tx.Value,
		Data:      tx.Data,
	}
}

type pendingTransactionJSON struct {
	Type                 hexutil.Uint64  `json:"type"`
	ChainID              *hexutil.Big    `json:"chainId"`
	From                 common.Address  `json:"from"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	To                   *common.Address `json:"to"`
	Value                *hexutil.Big    `json:"value"`
	Gas                  hexutil.Uint64  `json:"gas"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Data                 hexutil.Bytes   `json:"data"`
}

// MarshalJSON encodes the transaction with the field names wallets expect
// from eth_signTransaction style requests.
func (tx *PendingTransaction) MarshalJSON() ([]byte, error) {
	to := tx.To
	return json.Marshal(&pendingTransactionJSON{
		Type:                 hexutil.Uint64(ethtypes.DynamicFeeTxType),
		ChainID:              (*hexutil.Big)(bigOrZero(tx.ChainID)),
		From:                 tx.From,
		Nonce:                hexutil.Uint64(tx.Nonce),
		To:                   &to,
		Value:                (*hexutil.Big)(bigOrZero(tx.Value)),
		Gas:                  hexutil.Uint64(tx.Gas),
		MaxFeePerGas:         (*hexutil.Big)(bigOrZero(tx.GasFeeCap)),
		MaxPriorityFeePerGas: (*hexutil.Big)(bigOrZero(tx.GasTipCap)),
		Data:                 tx.Data,
	})
}

func (tx *PendingTransaction) UnmarshalJSON(input []byte) error {
	var dec pendingTransactionJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	if dec.To == nil {
		return errors.New("missing required field 'to'")
	}
	tx.ChainID = (*big.Int)(dec.ChainID)
	tx.From = dec.From
	tx.Nonce = uint64(dec.Nonce)
	tx.To = *dec.To
	tx.Value = (*big.Int)(dec.Value)
	tx.Gas = uint64(dec.Gas)
	tx.GasFeeCap = (*big.Int)(dec.MaxFeePerGas)
	tx.GasTipCap = (*big.Int)(dec.MaxPriorityFeePerGas)
	tx.Data = dec.Data
	return nil
}

// SignedTransaction is the raw, signed form of a PendingTransaction.
type SignedTransaction struct {
	Raw    []byte
	Hash   common.Hash
	Sender common.Address
	Nonce  uint64
	Tx     *ethtypes.Transaction
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
