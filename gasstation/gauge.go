package gasstation

import (
	"context"
	"math/big"

	"github.com/celer-network/aave-gas-station/ledger"
	"github.com/celer-network/aave-gas-station/types"
)

// FuelGauge decides whether a sender can pay for its own transaction at the
// configured gas price.
type FuelGauge struct {
	client    ledger.Client
	estimator Estimator
	gasPrice  *big.Int
}

func NewFuelGauge(client ledger.Client, estimator Estimator, gasPrice *big.Int) *FuelGauge {
	return &FuelGauge{
		client:    client,
		estimator: estimator,
		gasPrice:  new(big.Int).Set(gasPrice),
	}
}

// RequiredFee is the worst case fee for gasUnits at the configured price.
func (g *FuelGauge) RequiredFee(gasUnits uint64) *big.Int {
	return new(big.Int).Mul(g.gasPrice, new(big.Int).SetUint64(gasUnits))
}

// HasSufficientFuel reports balance > gasPrice * estimate. Equality is not
// enough, and a failed balance read counts as insufficient.
func (g *FuelGauge) HasSufficientFuel(ctx context.Context, tx *types.PendingTransaction) bool {
	required := g.RequiredFee(g.estimator.Estimate(ctx, tx))

	balance, err := g.client.BalanceAt(ctx, tx.From)
	if err != nil {
		logger.Error().Err(err).Str("wallet", tx.From.Hex()).Msg("Fuel check could not read balance")
		return false
	}

	if balance.Cmp(required) <= 0 {
		logger.Warn().Str("wallet", tx.From.Hex()).Str("balance", balance.String()).
			Str("required", required.String()).Msg("Not enough gas")
		return false
	}
	logger.Debug().Str("wallet", tx.From.Hex()).Str("balance", balance.String()).Msg("Fuel check passed")
	return true
}
