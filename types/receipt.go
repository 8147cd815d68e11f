package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Receipt is the chain-confirmed outcome of a transaction.
type Receipt struct {
	TxHash            common.Hash     `json:"transactionHash"`
	TransactionIndex  uint            `json:"transactionIndex"`
	BlockNumber       uint64          `json:"blockNumber"`
	Status            uint64          `json:"status"`
	GasUsed           uint64          `json:"gasUsed"`
	EffectiveGasPrice *big.Int        `json:"effectiveGasPrice"`
	ContractAddress   *common.Address `json:"contractAddress"`
}

func NewReceipt(r *ethtypes.Receipt) *Receipt {
	receipt := &Receipt{
		TxHash:            r.TxHash,
		TransactionIndex:  r.TransactionIndex,
		Status:            r.Status,
		GasUsed:           r.GasUsed,
		EffectiveGasPrice: r.EffectiveGasPrice,
	}
	if r.BlockNumber != nil {
		receipt.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.ContractAddress != (common.Address{}) {
		addr := r.ContractAddress
		receipt.ContractAddress = &addr
	}
	return receipt
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == ethtypes.ReceiptStatusSuccessful
}
