package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newRPCServer answers JSON-RPC calls from a method -> raw result table.
func newRPCServer(t *testing.T, results map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		result, ok := results[req.Method]
		if !ok {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, req.ID)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, result)
	}))
}

func TestEthClient(t *testing.T) {
	hash := common.HexToHash("0xabc1")
	server := newRPCServer(t, map[string]string{
		"eth_chainId":               `"0x13881"`,
		"eth_getTransactionCount":   `"0x5"`,
		"eth_getBalance":            `"0xde0b6b3a7640000"`,
		"eth_estimateGas":           `"0x5208"`,
		"eth_sendRawTransaction":    fmt.Sprintf("%q", hash.Hex()),
		"eth_getTransactionReceipt": `null`,
	})
	defer server.Close()

	ctx := context.Background()
	client, err := Dial(ctx, server.URL)
	require.NoError(t, err)
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(80001), chainID)

	nonce, err := client.NonceAt(ctx, common.Address{1})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), nonce)

	balance, err := client.BalanceAt(ctx, common.Address{1})
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", balance.String())

	sent, err := client.SendRawTransaction(ctx, []byte{0x02, 0x01})
	require.NoError(t, err)
	assert.Equal(t, hash, sent)

	receipt, err := client.TransactionReceipt(ctx, hash)
	assert.NoError(t, err)
	assert.Nil(t, receipt)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindRetryable},
		{"canceled", context.Canceled, KindTerminal},
		{"net timeout", fmt.Errorf("post: %w", timeoutErr{}), KindRetryable},
		{"http 429", ethrpc.HTTPError{StatusCode: http.StatusTooManyRequests, Status: "429"}, KindRetryable},
		{"http 503", ethrpc.HTTPError{StatusCode: http.StatusServiceUnavailable}, KindRetryable},
		{"http 401", ethrpc.HTTPError{StatusCode: http.StatusUnauthorized}, KindTerminal},
		{"rate limit message", errors.New("daily request count exceeded, request rate limited"), KindRetryable},
		{"nonce too low", errors.New("nonce too low: next nonce 8, tx nonce 7"), KindTerminal},
		{"underpriced replacement", errors.New("replacement transaction underpriced"), KindTerminal},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), KindTerminal},
		{"invalid sender", errors.New("invalid sender"), KindTerminal},
		{"reverted", errors.New("execution reverted"), KindTerminal},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, Classify(test.err))
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsNonceConflict(errors.New("nonce too low")))
	assert.True(t, IsNonceConflict(errors.New("already known")))
	assert.True(t, IsAlreadyKnown(errors.New("already known")))
	assert.False(t, IsNonceConflict(errors.New("insufficient funds")))
	assert.True(t, IsUnderpriced(errors.New("max fee per gas less than block base fee: address 0x, maxFeePerGas: 1, baseFee: 7")))
	assert.True(t, IsUnderpriced(errors.New("transaction underpriced")))
	assert.False(t, IsUnderpriced(errors.New("replacement transaction underpriced")))
	assert.True(t, IsInsufficientFunds(errors.New("insufficient funds for gas * price + value")))
	assert.True(t, IsInvalidSender(errors.New("invalid sender")))
	assert.False(t, IsInvalidSender(nil))
}
