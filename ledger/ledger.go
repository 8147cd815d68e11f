package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	ethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/celer-network/aave-gas-station/log"
)

// Client is the subset of the chain JSON-RPC surface the gas station uses.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	// NonceAt returns the transaction count of account at the latest block.
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	// TransactionReceipt returns nil, nil while the transaction is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	Close()
}

var logger = log.NewLogger("ledger")

// EthClient implements Client over go-ethereum's ethclient.
type EthClient struct {
	rpc *ethrpc.Client
	eth *ethclient.Client
}

var _ Client = (*EthClient)(nil)

func Dial(ctx context.Context, endpoint string) (*EthClient, error) {
	rpcClient, err := ethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("endpoint", endpoint).Msg("Connected to ledger")
	return NewEthClient(rpcClient), nil
}

func NewEthClient(rpcClient *ethrpc.Client) *EthClient {
	return &EthClient{
		rpc: rpcClient,
		eth: ethclient.NewClient(rpcClient),
	}
}

func (c *EthClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

func (c *EthClient) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.NonceAt(ctx, account, nil)
}

func (c *EthClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, account, nil)
}

func (c *EthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.eth.EstimateGas(ctx, msg)
}

func (c *EthClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, nil)
}

func (c *EthClient) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (c *EthClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return receipt, err
}

func (c *EthClient) Close() {
	c.rpc.Close()
}
