package gasstation

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/celer-network/aave-gas-station/ledger/ledgertest"
	"github.com/celer-network/aave-gas-station/types"
)

var gasPrice = big.NewInt(40_000_000_000)

func depositTx() *types.PendingTransaction {
	return &types.PendingTransaction{
		ChainID: big.NewInt(80001),
		From:    common.HexToAddress(walletA),
		To:      common.HexToAddress("0x9198F13B08E299d85E096929fA9781A1E3d5d827"),
		Value:   new(big.Int),
		Data:    []byte{0xe8, 0xed, 0xa9, 0xdf},
	}
}

func TestFeeEstimator(t *testing.T) {
	chain := ledgertest.NewChain(80001)
	var seen ethereum.CallMsg
	chain.EstimateFn = func(msg ethereum.CallMsg) (uint64, error) {
		seen = msg
		return 70000, nil
	}
	estimator := NewFeeEstimator(chain, 210000)
	assert.Equal(t, uint64(210000), estimator.Estimate(context.Background(), depositTx()))
	assert.Equal(t, common.HexToAddress(walletA), seen.From)
	assert.Zero(t, seen.Gas)

	chain.EstimateFn = func(ethereum.CallMsg) (uint64, error) {
		return 0, errors.New("execution reverted")
	}
	assert.Equal(t, uint64(210000), NewFeeEstimator(chain, 210000).Estimate(context.Background(), depositTx()))
	assert.Equal(t, uint64(300000), NewFeeEstimator(chain, 300000).Estimate(context.Background(), depositTx()))

	chain.EstimateFn = func(ethereum.CallMsg) (uint64, error) {
		return math.MaxUint64 / 2, nil
	}
	assert.Equal(t, uint64(math.MaxUint64), estimator.Estimate(context.Background(), depositTx()))
}

type fixedEstimator uint64

func (f fixedEstimator) Estimate(context.Context, *types.PendingTransaction) uint64 {
	return uint64(f)
}

func TestFuelGauge(t *testing.T) {
	chain := ledgertest.NewChain(80001)
	gauge := NewFuelGauge(chain, fixedEstimator(210000), gasPrice)
	required := new(big.Int).Mul(gasPrice, big.NewInt(210000))
	assert.Equal(t, required, gauge.RequiredFee(210000))

	from := common.HexToAddress(walletA)
	tests := []struct {
		name    string
		balance *big.Int
		want    bool
	}{
		{"empty", new(big.Int), false},
		{"below", new(big.Int).Sub(required, big.NewInt(1)), false},
		{"exactly the fee", required, false},
		{"one wei above", new(big.Int).Add(required, big.NewInt(1)), true},
		{"plenty", big.NewInt(1e18), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain.SetBalance(from, tt.balance)
			assert.Equal(t, tt.want, gauge.HasSufficientFuel(context.Background(), depositTx()))
		})
	}

	chain.SetBalance(from, big.NewInt(1e18))
	chain.BalanceErr = errors.New("connection refused")
	assert.False(t, gauge.HasSufficientFuel(context.Background(), depositTx()))
}

func TestFuelGaugeUsesEstimator(t *testing.T) {
	chain := ledgertest.NewChain(80001)
	chain.EstimateFn = func(ethereum.CallMsg) (uint64, error) { return 100000, nil }
	gauge := NewFuelGauge(chain, NewFeeEstimator(chain, 210000), gasPrice)

	// 300000 units after the safety factor
	chain.SetBalance(common.HexToAddress(walletA), new(big.Int).Mul(gasPrice, big.NewInt(250000)))
	assert.False(t, gauge.HasSufficientFuel(context.Background(), depositTx()))
	chain.SetBalance(common.HexToAddress(walletA), new(big.Int).Mul(gasPrice, big.NewInt(300001)))
	assert.True(t, gauge.HasSufficientFuel(context.Background(), depositTx()))
}
