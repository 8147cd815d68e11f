// Package ledgertest provides an in-memory chain implementing ledger.Client.
package ledgertest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Chain keeps balances, nonces and a pending pool per sender. Transactions
// are mined either immediately (AutoMine) or by calling Mine.
type Chain struct {
	mu sync.Mutex

	id       *big.Int
	block    uint64
	nonces   map[common.Address]uint64
	balances map[common.Address]*big.Int
	pool     map[common.Address]map[uint64]*ethtypes.Transaction
	receipts map[common.Hash]*ethtypes.Receipt
	sent     [][]byte

	AutoMine bool
	// Status is written into receipts of mined transactions.
	Status uint64

	EstimateFn func(msg ethereum.CallMsg) (uint64, error)
	CallFn     func(msg ethereum.CallMsg) ([]byte, error)

	NonceErr   error
	BalanceErr error
	SendErrs   []error
}

func NewChain(chainID int64) *Chain {
	return &Chain{
		id:       big.NewInt(chainID),
		nonces:   make(map[common.Address]uint64),
		balances: make(map[common.Address]*big.Int),
		pool:     make(map[common.Address]map[uint64]*ethtypes.Transaction),
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		AutoMine: true,
		Status:   ethtypes.ReceiptStatusSuccessful,
	}
}

func (c *Chain) SetBalance(addr common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = new(big.Int).Set(amount)
}

func (c *Chain) Balance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceOf(addr)
}

// Sent returns the raw transactions accepted so far.
func (c *Chain) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *Chain) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, txs := range c.pool {
		n += len(txs)
	}
	return n
}

// Mine includes the pending transaction with the given hash.
func (c *Chain) Mine(hash common.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, txs := range c.pool {
		for _, tx := range txs {
			if tx.Hash() == hash {
				c.mine(tx)
				return true
			}
		}
	}
	return false
}

func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.id), nil
}

func (c *Chain) NonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.NonceErr != nil {
		return 0, c.NonceErr
	}
	return c.nonces[account], nil
}

func (c *Chain) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	return c.balanceOf(account), nil
}

func (c *Chain) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if c.EstimateFn == nil {
		return 21000, nil
	}
	return c.EstimateFn(msg)
}

func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if c.CallFn == nil {
		return nil, errors.New("execution reverted")
	}
	return c.CallFn(msg)
}

func (c *Chain) SendRawTransaction(_ context.Context, raw []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.SendErrs) > 0 {
		err := c.SendErrs[0]
		c.SendErrs = c.SendErrs[1:]
		if err != nil {
			return common.Hash{}, err
		}
	}

	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(c.id), tx)
	if err != nil {
		return common.Hash{}, errors.New("invalid sender")
	}
	if tx.Nonce() < c.nonces[from] {
		return common.Hash{}, errors.New("nonce too low")
	}
	if queued, ok := c.pool[from][tx.Nonce()]; ok {
		if queued.Hash() == tx.Hash() {
			return common.Hash{}, errors.New("already known")
		}
		return common.Hash{}, errors.New("replacement transaction underpriced")
	}
	if c.pool[from] == nil {
		c.pool[from] = make(map[uint64]*ethtypes.Transaction)
	}
	c.pool[from][tx.Nonce()] = tx
	c.sent = append(c.sent, raw)
	if c.AutoMine {
		c.mine(tx)
	}
	return tx.Hash(), nil
}

func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipts[hash], nil
}

func (c *Chain) Close() {}

func (c *Chain) balanceOf(addr common.Address) *big.Int {
	if b, ok := c.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (c *Chain) mine(tx *ethtypes.Transaction) {
	from, _ := ethtypes.Sender(ethtypes.LatestSignerForChainID(c.id), tx)
	delete(c.pool[from], tx.Nonce())
	c.nonces[from] = tx.Nonce() + 1
	c.block++

	if c.Status == ethtypes.ReceiptStatusSuccessful && tx.To() != nil && tx.Value().Sign() > 0 {
		c.balances[*tx.To()] = new(big.Int).Add(c.balanceOf(*tx.To()), tx.Value())
		c.balances[from] = new(big.Int).Sub(c.balanceOf(from), tx.Value())
	}
	c.receipts[tx.Hash()] = &ethtypes.Receipt{
		Type:              tx.Type(),
		Status:            c.Status,
		TxHash:            tx.Hash(),
		GasUsed:           tx.Gas() / 3,
		EffectiveGasPrice: tx.GasFeeCap(),
		BlockNumber:       new(big.Int).SetUint64(c.block),
	}
}
