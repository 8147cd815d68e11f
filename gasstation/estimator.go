package gasstation

import (
	"context"
	"math"

	"github.com/celer-network/aave-gas-station/ledger"
	"github.com/celer-network/aave-gas-station/types"
)

// GasSafetyFactor absorbs state drift between simulation and execution.
const GasSafetyFactor = 3

// FeeEstimator turns a simulation into a gas limit with head room.
type FeeEstimator struct {
	client          ledger.Client
	defaultGasUnits uint64
}

func NewFeeEstimator(client ledger.Client, defaultGasUnits uint64) *FeeEstimator {
	return &FeeEstimator{
		client:          client,
		defaultGasUnits: defaultGasUnits,
	}
}

// Estimate never fails: when the simulation errors the configured default
// is returned.
func (e *FeeEstimator) Estimate(ctx context.Context, tx *types.PendingTransaction) uint64 {
	units, err := e.client.EstimateGas(ctx, tx.CallMsg())
	if err != nil {
		logger.Warn().Err(err).Str("from", tx.From.Hex()).Str("to", tx.To.Hex()).
			Uint64("default", e.defaultGasUnits).Msg("Gas estimation failed, using default")
		return e.defaultGasUnits
	}
	if units > math.MaxUint64/GasSafetyFactor {
		return math.MaxUint64
	}
	gas := units * GasSafetyFactor
	logger.Debug().Uint64("simulated", units).Uint64("estimated", gas).Msg("Estimated gas units")
	return gas
}

// Estimator is satisfied by FeeEstimator.
type Estimator interface {
	Estimate(ctx context.Context, tx *types.PendingTransaction) uint64
}
