package aave

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/celer-network/aave-gas-station/ledger"
	"github.com/celer-network/aave-gas-station/log"
	"github.com/celer-network/aave-gas-station/types"
	"github.com/celer-network/aave-gas-station/utils"
)

const (
	SecondsPerYear = 31536000
	NativeDecimals = 18
)

var (
	ErrUnknownToken      = errors.New("token not configured")
	ErrNoDataProvider    = errors.New("protocol data provider not configured")
	ErrLendingPoolUnset  = errors.New("lending pool could not be resolved")
	rayScale             = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(25), nil))
	errUnexpectedOutputs = errors.New("unexpected contract outputs")
)

var logger = log.NewLogger("aave")

// TokenRegistry maps token symbols to contract addresses.
type TokenRegistry interface {
	Token(symbol string) (common.Address, bool)
}

// Deployment holds the Aave contract addresses of one network. LendingPool
// may be left zero to resolve it through the addresses provider.
type Deployment struct {
	AddressesProvider common.Address
	LendingPool       common.Address
	DataProvider      common.Address
	DepositToken      string
	ATokenPrefix      string
}

// ReserveData is ProtocolDataProvider.getReserveData plus yearly rates.
type ReserveData struct {
	AvailableLiquidity      *big.Int `json:"availableLiquidity"`
	TotalStableDebt         *big.Int `json:"totalStableDebt"`
	TotalVariableDebt       *big.Int `json:"totalVariableDebt"`
	LiquidityRate           *big.Int `json:"liquidityRate"`
	VariableBorrowRate      *big.Int `json:"variableBorrowRate"`
	StableBorrowRate        *big.Int `json:"stableBorrowRate"`
	AverageStableBorrowRate *big.Int `json:"averageStableBorrowRate"`
	LiquidityIndex          *big.Int `json:"liquidityIndex"`
	VariableBorrowIndex     *big.Int `json:"variableBorrowIndex"`
	LastUpdateTimestamp     uint64   `json:"lastUpdateTimestamp"`

	LiquidityRateYearly      float64 `json:"liquidityRateYearly"`
	VariableBorrowRateYearly float64 `json:"variableBorrowRateYearly"`
}

// YearlyRate compounds a per-second ray rate over a year, in percent.
func YearlyRate(rate *big.Int) float64 {
	if rate == nil {
		return 0
	}
	apr, _ := new(big.Float).Quo(new(big.Float).SetInt(rate), rayScale).Float64()
	return (math.Pow(1+apr/100/SecondsPerYear, SecondsPerYear) - 1) * 100
}

// Reader reads reserve state and balances.
type Reader struct {
	client     ledger.Client
	tokens     TokenRegistry
	deployment Deployment

	poolMu sync.Mutex
	pool   common.Address
}

func NewReader(client ledger.Client, tokens TokenRegistry, deployment Deployment) *Reader {
	return &Reader{
		client:     client,
		tokens:     tokens,
		deployment: deployment,
		pool:       deployment.LendingPool,
	}
}

func (r *Reader) DepositToken() string {
	return r.deployment.DepositToken
}

func (r *Reader) Token(symbol string) (common.Address, error) {
	addr, ok := r.tokens.Token(symbol)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownToken, strings.ToUpper(symbol))
	}
	return addr, nil
}

// ResolveLendingPool returns the configured lending pool, or asks the
// addresses provider once and caches the answer.
func (r *Reader) ResolveLendingPool(ctx context.Context) (common.Address, error) {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	if r.pool != (common.Address{}) {
		return r.pool, nil
	}
	if r.deployment.AddressesProvider == (common.Address{}) {
		return common.Address{}, ErrLendingPoolUnset
	}

	out, err := callContract(ctx, r.client, r.deployment.AddressesProvider, AddressesProviderABI, "getLendingPool")
	if err != nil {
		return common.Address{}, err
	}
	pool, ok := firstOutput(out).(common.Address)
	if !ok || pool == (common.Address{}) {
		return common.Address{}, ErrLendingPoolUnset
	}
	logger.Info().Str("lendingPool", pool.Hex()).Msg("Resolved lending pool")
	r.pool = pool
	return pool, nil
}

// ReserveData reads the reserve of the token configured under symbol.
func (r *Reader) ReserveData(ctx context.Context, symbol string) (*ReserveData, error) {
	token, err := r.Token(symbol)
	if err != nil {
		return nil, err
	}
	if r.deployment.DataProvider == (common.Address{}) {
		return nil, ErrNoDataProvider
	}
	out, err := callContract(ctx, r.client, r.deployment.DataProvider, DataProviderABI, "getReserveData", token)
	if err != nil {
		return nil, err
	}
	if len(out) != 10 {
		return nil, fmt.Errorf("%w: getReserveData returned %d values", errUnexpectedOutputs, len(out))
	}
	fields := make([]*big.Int, len(out))
	for i, v := range out {
		fields[i] = abi.ConvertType(v, new(big.Int)).(*big.Int)
	}

	data := &ReserveData{
		AvailableLiquidity:      fields[0],
		TotalStableDebt:         fields[1],
		TotalVariableDebt:       fields[2],
		LiquidityRate:           fields[3],
		VariableBorrowRate:      fields[4],
		StableBorrowRate:        fields[5],
		AverageStableBorrowRate: fields[6],
		LiquidityIndex:          fields[7],
		VariableBorrowIndex:     fields[8],
		LastUpdateTimestamp:     fields[9].Uint64(),
	}
	data.LiquidityRateYearly = YearlyRate(data.LiquidityRate)
	data.VariableBorrowRateYearly = YearlyRate(data.VariableBorrowRate)
	logger.Debug().Str("token", strings.ToUpper(symbol)).Str("liquidityRate", data.LiquidityRate.String()).
		Float64("liquidityRateYearly", data.LiquidityRateYearly).Msg("Fetched reserve data")
	return data, nil
}

func (r *Reader) NativeBalance(ctx context.Context, wallet common.Address) (*big.Int, error) {
	return r.client.BalanceAt(ctx, wallet)
}

// TokenBalance calls balanceOf(wallet) on the token configured under symbol.
func (r *Reader) TokenBalance(ctx context.Context, symbol string, wallet common.Address) (*big.Int, error) {
	token, err := r.Token(symbol)
	if err != nil {
		return nil, err
	}
	out, err := callContract(ctx, r.client, token, ERC20ABI, "balanceOf", wallet)
	if err != nil {
		return nil, err
	}
	amount, ok := firstOutput(out).(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: balanceOf", errUnexpectedOutputs)
	}
	return amount, nil
}

func (r *Reader) TokenDecimals(ctx context.Context, symbol string) (uint8, error) {
	token, err := r.Token(symbol)
	if err != nil {
		return 0, err
	}
	out, err := callContract(ctx, r.client, token, ERC20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := firstOutput(out).(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals", errUnexpectedOutputs)
	}
	return decimals, nil
}

// Balance assembles the wallet snapshot: native coin, deposit token and its
// aToken.
func (r *Reader) Balance(ctx context.Context, wallet string) (*types.Balance, error) {
	addr, err := utils.ChecksumAddress(wallet)
	if err != nil {
		return nil, err
	}
	tokenSymbol := r.deployment.DepositToken
	aTokenSymbol := r.deployment.ATokenPrefix + tokenSymbol

	native, err := r.NativeBalance(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("native balance: %w", err)
	}
	token, tokenDecimals, err := r.scaledBalance(ctx, tokenSymbol, addr)
	if err != nil {
		return nil, err
	}
	aToken, aTokenDecimals, err := r.scaledBalance(ctx, aTokenSymbol, addr)
	if err != nil {
		return nil, err
	}

	return &types.Balance{
		Timestamp:     float64(time.Now().UnixNano()) / float64(time.Second),
		Native:        native,
		AToken:        aToken,
		Token:         token,
		NativeDecimal: types.ToDecimal(native, NativeDecimals),
		ATokenDecimal: types.ToDecimal(aToken, aTokenDecimals),
		TokenDecimal:  types.ToDecimal(token, tokenDecimals),
	}, nil
}

func (r *Reader) scaledBalance(ctx context.Context, symbol string, wallet common.Address) (*big.Int, uint8, error) {
	amount, err := r.TokenBalance(ctx, symbol, wallet)
	if err != nil {
		return nil, 0, fmt.Errorf("%s balance: %w", symbol, err)
	}
	decimals, err := r.TokenDecimals(ctx, symbol)
	if err != nil {
		return nil, 0, fmt.Errorf("%s decimals: %w", symbol, err)
	}
	return amount, decimals, nil
}

func firstOutput(out []interface{}) interface{} {
	if len(out) == 0 {
		return nil
	}
	return out[0]
}
