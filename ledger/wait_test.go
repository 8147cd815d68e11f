package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer-network/aave-gas-station/types"
)

// scriptedClient replays queued answers for receipts and broadcasts.
type scriptedClient struct {
	mu          sync.Mutex
	receipts    []receiptAnswer
	sends       []error
	sendCalls   int
	receiptHits int
}

type receiptAnswer struct {
	receipt *ethtypes.Receipt
	err     error
}

func (c *scriptedClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (c *scriptedClient) NonceAt(context.Context, common.Address) (uint64, error) {
	return 0, nil
}
func (c *scriptedClient) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}
func (c *scriptedClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, nil
}
func (c *scriptedClient) CallContract(context.Context, ethereum.CallMsg) ([]byte, error) {
	return nil, nil
}
func (c *scriptedClient) Close() {}

func (c *scriptedClient) SendRawTransaction(context.Context, []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendCalls++
	if len(c.sends) == 0 {
		return common.Hash{}, nil
	}
	err := c.sends[0]
	c.sends = c.sends[1:]
	return common.Hash{}, err
}

func (c *scriptedClient) TransactionReceipt(context.Context, common.Hash) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiptHits++
	if len(c.receipts) == 0 {
		return nil, nil
	}
	answer := c.receipts[0]
	if len(c.receipts) > 1 {
		c.receipts = c.receipts[1:]
	}
	return answer.receipt, answer.err
}

var fastWait = WaitConfig{
	Timeout:         200 * time.Millisecond,
	PollInterval:    time.Millisecond,
	MaxPollInterval: 5 * time.Millisecond,
}

func TestWaitMinedAfterPending(t *testing.T) {
	mined := &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(9)}
	client := &scriptedClient{receipts: []receiptAnswer{
		{nil, nil},
		{nil, context.DeadlineExceeded},
		{nil, nil},
		{mined, nil},
	}}
	receipt, err := WaitMined(context.Background(), client, common.Hash{1}, fastWait)
	require.NoError(t, err)
	assert.Equal(t, mined, receipt)
	assert.Equal(t, 4, client.receiptHits)
}

func TestWaitMinedTimeout(t *testing.T) {
	client := &scriptedClient{}
	start := time.Now()
	_, err := WaitMined(context.Background(), client, common.Hash{1}, fastWait)
	assert.ErrorIs(t, err, ErrReceiptTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitMinedTerminalError(t *testing.T) {
	boom := errors.New("invalid argument 0: hex string has length 3")
	client := &scriptedClient{receipts: []receiptAnswer{{nil, boom}}}
	_, err := WaitMined(context.Background(), client, common.Hash{1}, fastWait)
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, client.receiptHits)
}

func TestWaitMinedParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WaitMined(ctx, &scriptedClient{}, common.Hash{1}, fastWait)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBroadcastRetries(t *testing.T) {
	tx := &types.SignedTransaction{Raw: []byte{1}, Hash: common.Hash{2}}
	retry := RetryConfig{Retries: 3, Interval: time.Millisecond}

	client := &scriptedClient{sends: []error{errors.New("429 too many requests"), nil}}
	require.NoError(t, Broadcast(context.Background(), client, tx, retry))
	assert.Equal(t, 2, client.sendCalls)

	// the first attempt landed even though the answer was lost
	client = &scriptedClient{sends: []error{context.DeadlineExceeded, errors.New("already known")}}
	require.NoError(t, Broadcast(context.Background(), client, tx, retry))
	assert.Equal(t, 2, client.sendCalls)

	client = &scriptedClient{sends: []error{errors.New("nonce too low")}}
	err := Broadcast(context.Background(), client, tx, retry)
	assert.True(t, IsNonceConflict(err))
	assert.Equal(t, 1, client.sendCalls)

	// already known on the very first attempt is a conflict, not a success
	client = &scriptedClient{sends: []error{errors.New("already known")}}
	assert.Error(t, Broadcast(context.Background(), client, tx, retry))

	timeout := errors.New("connection refused")
	client = &scriptedClient{sends: []error{timeout, timeout, timeout, timeout, timeout}}
	assert.Equal(t, timeout, Broadcast(context.Background(), client, tx, retry))
	assert.Equal(t, 4, client.sendCalls)
}

func TestBroadcastRetryFindsMinedTransaction(t *testing.T) {
	tx := &types.SignedTransaction{Raw: []byte{1}, Hash: common.Hash{2}}
	retry := RetryConfig{Retries: 3, Interval: time.Millisecond}

	// the first send was mined before the retry reached the node
	client := &scriptedClient{
		sends:    []error{errors.New("i/o timeout"), errors.New("nonce too low")},
		receipts: []receiptAnswer{{receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: tx.Hash}}},
	}
	require.NoError(t, Broadcast(context.Background(), client, tx, retry))
	assert.Equal(t, 2, client.sendCalls)
	assert.Equal(t, 1, client.receiptHits)

	// the nonce went to some other transaction
	client = &scriptedClient{sends: []error{errors.New("i/o timeout"), errors.New("nonce too low")}}
	err := Broadcast(context.Background(), client, tx, retry)
	assert.True(t, IsNonceConflict(err))
	assert.Equal(t, 2, client.sendCalls)

	// a first-attempt conflict never consults receipts
	client = &scriptedClient{
		sends:    []error{errors.New("nonce too low")},
		receipts: []receiptAnswer{{receipt: &ethtypes.Receipt{TxHash: tx.Hash}}},
	}
	assert.Error(t, Broadcast(context.Background(), client, tx, retry))
	assert.Equal(t, 0, client.receiptHits)
}
