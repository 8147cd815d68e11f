package aave

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/celer-network/aave-gas-station/gasstation"
	"github.com/celer-network/aave-gas-station/ledger"
	"github.com/celer-network/aave-gas-station/types"
	"github.com/celer-network/aave-gas-station/utils"
)

// referralCode is unused by the lending pool and always zero.
const referralCode uint16 = 0

var ErrNoBalance = errors.New("balance is required")

// FuelChecker is satisfied by gasstation.FuelGauge.
type FuelChecker interface {
	HasSufficientFuel(ctx context.Context, tx *types.PendingTransaction) bool
}

// Sponsor is satisfied by gasstation.Relay.
type Sponsor interface {
	Sponsor(ctx context.Context, target string) (*gasstation.Sponsorship, error)
}

// BuilderConfig holds the fee fields written into every built transaction.
type BuilderConfig struct {
	ChainID         *big.Int
	GasFeeCap       *big.Int
	GasTipCap       *big.Int
	DefaultGasUnits uint64
}

// BuildResult is an unsigned user transaction plus the outcome of the gas
// sponsorship it needed, if any. Transaction is set whenever the build
// returns no error, whether or not sponsorship succeeded.
type BuildResult struct {
	Transaction         *types.PendingTransaction
	SponsorshipRequired bool
	Sponsorship         *gasstation.Sponsorship
	SponsorshipErr      error
}

// Sponsored reports that the wallet either had enough fuel or was topped up.
func (r *BuildResult) Sponsored() bool {
	return !r.SponsorshipRequired || r.SponsorshipErr == nil
}

// Builder constructs deposit and approval transactions for user wallets and
// tops the wallet up when it cannot pay for them.
type Builder struct {
	client    ledger.Client
	reader    *Reader
	estimator gasstation.Estimator
	gauge     FuelChecker
	sponsor   Sponsor
	config    BuilderConfig
}

func NewBuilder(client ledger.Client, reader *Reader, estimator gasstation.Estimator, gauge FuelChecker, sponsor Sponsor, config BuilderConfig) *Builder {
	return &Builder{
		client:    client,
		reader:    reader,
		estimator: estimator,
		gauge:     gauge,
		sponsor:   sponsor,
		config:    config,
	}
}

// BuildDeposit builds LendingPool.deposit of the wallet's whole deposit token
// balance on behalf of the wallet itself. A nil nonce is read from the ledger.
func (b *Builder) BuildDeposit(ctx context.Context, balance *types.Balance, wallet string, nonce *uint64) (*BuildResult, error) {
	if balance == nil {
		return nil, ErrNoBalance
	}
	from, err := utils.ChecksumAddress(wallet)
	if err != nil {
		return nil, err
	}
	token, err := b.reader.Token(b.reader.DepositToken())
	if err != nil {
		return nil, err
	}
	pool, err := b.reader.ResolveLendingPool(ctx)
	if err != nil {
		return nil, err
	}
	data, err := LendingPoolABI.Pack("deposit", token, amountOf(balance), from, referralCode)
	if err != nil {
		return nil, fmt.Errorf("pack deposit: %w", err)
	}
	logger.Info().Str("wallet", from.Hex()).Str("amount", amountOf(balance).String()).Msg("Depositing to Aave")
	return b.build(ctx, from, pool, data, nonce)
}

// BuildApproval builds ERC20.approve(lendingPool, amount) on the deposit
// token for the wallet's whole balance.
func (b *Builder) BuildApproval(ctx context.Context, balance *types.Balance, wallet string) (*BuildResult, error) {
	if balance == nil {
		return nil, ErrNoBalance
	}
	from, err := utils.ChecksumAddress(wallet)
	if err != nil {
		return nil, err
	}
	token, err := b.reader.Token(b.reader.DepositToken())
	if err != nil {
		return nil, err
	}
	pool, err := b.reader.ResolveLendingPool(ctx)
	if err != nil {
		return nil, err
	}
	data, err := ERC20ABI.Pack("approve", pool, amountOf(balance))
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	logger.Info().Str("wallet", from.Hex()).Str("spender", pool.Hex()).Msg("Approval for Aave")
	return b.build(ctx, from, token, data, nil)
}

func (b *Builder) build(ctx context.Context, from, to common.Address, data []byte, nonce *uint64) (*BuildResult, error) {
	var n uint64
	if nonce != nil {
		n = *nonce
	} else {
		var err error
		if n, err = b.client.NonceAt(ctx, from); err != nil {
			return nil, fmt.Errorf("fetch nonce of %s: %w", from.Hex(), err)
		}
	}

	tx := &types.PendingTransaction{
		ChainID:   b.config.ChainID,
		From:      from,
		Nonce:     n,
		To:        to,
		Value:     new(big.Int),
		Gas:       b.config.DefaultGasUnits,
		GasFeeCap: b.config.GasFeeCap,
		GasTipCap: b.config.GasTipCap,
		Data:      data,
	}
	tx = tx.WithGas(b.estimator.Estimate(ctx, tx))

	result := &BuildResult{Transaction: tx}
	if b.gauge.HasSufficientFuel(ctx, tx) {
		return result, nil
	}

	result.SponsorshipRequired = true
	result.Sponsorship, result.SponsorshipErr = b.sponsor.Sponsor(ctx, from.Hex())
	if result.SponsorshipErr != nil {
		logger.Warn().Err(result.SponsorshipErr).Str("wallet", from.Hex()).
			Msg("Returning transaction without gas sponsorship")
	}
	return result, nil
}

func amountOf(balance *types.Balance) *big.Int {
	if balance.Token == nil {
		return new(big.Int)
	}
	return balance.Token
}
