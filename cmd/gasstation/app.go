package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/celer-network/aave-gas-station/aave"
	"github.com/celer-network/aave-gas-station/config"
	"github.com/celer-network/aave-gas-station/db"
	"github.com/celer-network/aave-gas-station/db/badgerdb"
	"github.com/celer-network/aave-gas-station/db/memorydb"
	"github.com/celer-network/aave-gas-station/gasstation"
	"github.com/celer-network/aave-gas-station/ledger"
	"github.com/celer-network/aave-gas-station/storage"
)

const dialTimeout = 30 * time.Second

// app wires every component from one config.
type app struct {
	cfg         *config.Config
	client      ledger.Client
	store       *storage.Storage
	relay       *gasstation.Relay
	reader      *aave.Reader
	builder     *aave.Builder
	broadcaster *aave.Broadcaster
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	client, err := ledger.Dial(dialCtx, cfg.Networks.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Networks.RPCURL, err)
	}
	a := &app{cfg: cfg, client: client}
	if err := a.init(dialCtx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg
	chainID, err := a.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	if chainID.Cmp(cfg.Networks.ChainIDBig()) != 0 {
		return fmt.Errorf("node is on chain %s, config says %d", chainID, cfg.Networks.ChainID)
	}

	key, err := cfg.GasStation.PrivateKey()
	if err != nil {
		return fmt.Errorf("load funding key: %w", err)
	}
	funding, err := gasstation.NewFundingAccount(key, common.HexToAddress(cfg.GasStation.Address))
	if err != nil {
		return err
	}

	var database db.DB
	if cfg.DB.Dir != "" {
		if database, err = badgerdb.NewDB(cfg.DB.Dir); err != nil {
			return fmt.Errorf("open db %s: %w", cfg.DB.Dir, err)
		}
	} else {
		logger.Warn().Msg("db.dir not set, sponsorship records are kept in memory")
		database = memorydb.NewDB()
	}
	a.store = storage.NewStorage(database)

	wait := ledger.WaitConfig{
		Timeout:         cfg.Relay.ConfirmTimeout,
		PollInterval:    cfg.Relay.PollInterval,
		MaxPollInterval: cfg.Relay.MaxPollInterval,
	}
	retry := ledger.RetryConfig{Retries: cfg.Relay.BroadcastRetries, Interval: cfg.Relay.PollInterval}
	a.relay = gasstation.NewRelay(a.client, funding, gasstation.RelayConfig{
		ChainID:         cfg.Networks.ChainIDBig(),
		GasAllowance:    cfg.GasStation.GasAllowanceWei(),
		GasLimit:        cfg.Networks.DefaultGasUnits,
		GasFeeCap:       cfg.Networks.GasPriceWei(),
		GasTipCap:       cfg.Networks.MinerTipPriceWei(),
		Broadcast:       retry,
		Wait:            wait,
		RevertIsFailure: cfg.Relay.RevertIsFailure,
	}, a.store)

	a.reader = aave.NewReader(a.client, cfg, aave.Deployment{
		AddressesProvider: optionalAddress(cfg.Networks.LendingPoolAddressesProvider),
		LendingPool:       optionalAddress(cfg.Networks.LendingPool),
		DataProvider:      optionalAddress(cfg.Networks.ProtocolDataProvider),
		DepositToken:      cfg.Aave.DepositToken,
		ATokenPrefix:      cfg.Aave.ATokenPrefix,
	})
	estimator := gasstation.NewFeeEstimator(a.client, cfg.Networks.DefaultGasUnits)
	gauge := gasstation.NewFuelGauge(a.client, estimator, cfg.Networks.GasPriceWei())
	a.builder = aave.NewBuilder(a.client, a.reader, estimator, gauge, a.relay, aave.BuilderConfig{
		ChainID:         cfg.Networks.ChainIDBig(),
		GasFeeCap:       cfg.Networks.GasPriceWei(),
		GasTipCap:       cfg.Networks.MinerTipPriceWei(),
		DefaultGasUnits: cfg.Networks.DefaultGasUnits,
	})
	a.broadcaster = aave.NewBroadcaster(a.client, retry, wait)

	logger.Info().Str("funder", funding.Address().Hex()).Str("chainId", chainID.String()).
		Str("allowance", cfg.GasStation.GasAllowanceWei().String()).Strs("tokens", cfg.TokenSymbols()).
		Msg("Gas station ready")
	return nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close db")
		}
	}
	a.client.Close()
}

func optionalAddress(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}
