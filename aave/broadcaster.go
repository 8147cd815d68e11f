package aave

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/celer-network/aave-gas-station/ledger"
	"github.com/celer-network/aave-gas-station/types"
	"github.com/celer-network/aave-gas-station/utils"
)

var (
	ErrPending    = errors.New("transaction pending")
	ErrInvalidHex = errors.New("invalid transaction hex")
)

// Broadcaster relays transactions signed by the wallet service.
type Broadcaster struct {
	client ledger.Client
	retry  ledger.RetryConfig
	wait   ledger.WaitConfig
}

func NewBroadcaster(client ledger.Client, retry ledger.RetryConfig, wait ledger.WaitConfig) *Broadcaster {
	return &Broadcaster{
		client: client,
		retry:  retry,
		wait:   wait,
	}
}

// BroadcastResult is a mined user transaction. RevertReason is set only for
// reverted transactions whose reason could be recovered.
type BroadcastResult struct {
	Hash         common.Hash    `json:"transactionHash"`
	Receipt      *types.Receipt `json:"receipt"`
	RevertReason string         `json:"revertReason,omitempty"`
}

// Broadcast sends a hex encoded signed transaction and blocks until it is
// mined. Once the node accepted the transaction a result carrying the hash is
// returned even with an error, so callers can keep polling Status after a
// timeout.
func (b *Broadcaster) Broadcast(ctx context.Context, rawHex string) (*BroadcastResult, error) {
	rawHex = strings.TrimSpace(rawHex)
	if !strings.HasPrefix(rawHex, "0x") && !strings.HasPrefix(rawHex, "0X") {
		rawHex = "0x" + rawHex
	}
	raw, err := hexutil.Decode(rawHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	signed, err := utils.DecodeSignedTransaction(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}

	if err := ledger.Broadcast(ctx, b.client, signed, b.retry); err != nil {
		return nil, err
	}
	logger.Info().Str("tx", signed.Hash.Hex()).Str("from", signed.Sender.Hex()).Msg("Waiting for transaction")

	result := &BroadcastResult{Hash: signed.Hash}
	receipt, err := ledger.WaitMined(ctx, b.client, signed.Hash, b.wait)
	if err != nil {
		return result, err
	}
	result.Receipt = types.NewReceipt(receipt)
	if !result.Receipt.Succeeded() {
		reason, err := ledger.RevertReason(ctx, b.client, ledger.ReplayMsg(signed.Tx, signed.Sender))
		if err != nil {
			logger.Warn().Err(err).Str("tx", signed.Hash.Hex()).Msg("Broadcast transaction reverted")
		} else {
			logger.Warn().Str("tx", signed.Hash.Hex()).Str("reason", reason).Msg("Broadcast transaction reverted")
			result.RevertReason = reason
		}
	}
	return result, nil
}

// Status returns the receipt of hash, or ErrPending while there is none.
func (b *Broadcaster) Status(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := b.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ErrPending
	}
	return types.NewReceipt(receipt), nil
}
