package aave

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/celer-network/aave-gas-station/ledger"
)

// Only the methods the gas station calls are listed.
const (
	lendingPoolABIJSON = `[
		{
			"inputs": [
				{"name": "asset", "type": "address"},
				{"name": "amount", "type": "uint256"},
				{"name": "onBehalfOf", "type": "address"},
				{"name": "referralCode", "type": "uint16"}
			],
			"name": "deposit",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`

	addressesProviderABIJSON = `[
		{
			"inputs": [],
			"name": "getLendingPool",
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`

	dataProviderABIJSON = `[
		{
			"inputs": [{"name": "asset", "type": "address"}],
			"name": "getReserveData",
			"outputs": [
				{"name": "availableLiquidity", "type": "uint256"},
				{"name": "totalStableDebt", "type": "uint256"},
				{"name": "totalVariableDebt", "type": "uint256"},
				{"name": "liquidityRate", "type": "uint256"},
				{"name": "variableBorrowRate", "type": "uint256"},
				{"name": "stableBorrowRate", "type": "uint256"},
				{"name": "averageStableBorrowRate", "type": "uint256"},
				{"name": "liquidityIndex", "type": "uint256"},
				{"name": "variableBorrowIndex", "type": "uint256"},
				{"name": "lastUpdateTimestamp", "type": "uint40"}
			],
			"stateMutability": "view",
			"type": "function"
		}
	]`

	erc20ABIJSON = `[
		{
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "approve",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "account", "type": "address"}],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "decimals",
			"outputs": [{"name": "", "type": "uint8"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`
)

var (
	LendingPoolABI       = mustParseABI(lendingPoolABIJSON)
	AddressesProviderABI = mustParseABI(addressesProviderABIJSON)
	DataProviderABI      = mustParseABI(dataProviderABIJSON)
	ERC20ABI             = mustParseABI(erc20ABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid abi: %v", err))
	}
	return parsed
}

// callContract runs a read-only method and returns its unpacked outputs.
func callContract(ctx context.Context, client ledger.Client, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := contract
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, contract.Hex(), err)
	}
	outputs, err := parsed.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return outputs, nil
}
