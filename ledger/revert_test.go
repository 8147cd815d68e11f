package ledger_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer-network/aave-gas-station/ledger"
	"github.com/celer-network/aave-gas-station/ledger/ledgertest"
)

type dataError struct {
	data interface{}
}

func (e *dataError) Error() string          { return "execution reverted" }
func (e *dataError) ErrorData() interface{} { return e.data }

func revertPayload(t *testing.T, reason string) []byte {
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
}

func TestRevertReason(t *testing.T) {
	payload := revertPayload(t, "SafeERC20: low-level call failed")
	chain := ledgertest.NewChain(1)
	msg := ethereum.CallMsg{To: &common.Address{1}}

	// reason returned as call output
	chain.CallFn = func(ethereum.CallMsg) ([]byte, error) { return payload, nil }
	reason, err := ledger.RevertReason(context.Background(), chain, msg)
	require.NoError(t, err)
	assert.Equal(t, "SafeERC20: low-level call failed", reason)

	// reason carried in the error data
	chain.CallFn = func(ethereum.CallMsg) ([]byte, error) {
		return nil, &dataError{data: "Reverted " + hexutil.Encode(payload)}
	}
	reason, err = ledger.RevertReason(context.Background(), chain, msg)
	require.NoError(t, err)
	assert.Equal(t, "SafeERC20: low-level call failed", reason)

	chain.CallFn = func(ethereum.CallMsg) ([]byte, error) {
		return nil, &dataError{data: hexutil.Encode(payload)[2:]}
	}
	reason, err = ledger.RevertReason(context.Background(), chain, msg)
	require.NoError(t, err)
	assert.Equal(t, "SafeERC20: low-level call failed", reason)

	chain.CallFn = func(ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("execution reverted: 5")
	}
	reason, err = ledger.RevertReason(context.Background(), chain, msg)
	require.NoError(t, err)
	assert.Equal(t, "5", reason)

	chain.CallFn = func(ethereum.CallMsg) ([]byte, error) { return nil, nil }
	_, err = ledger.RevertReason(context.Background(), chain, msg)
	assert.ErrorIs(t, err, ledger.ErrNoRevertReason)

	chain.CallFn = func(ethereum.CallMsg) ([]byte, error) { return []byte{1, 2, 3}, nil }
	_, err = ledger.RevertReason(context.Background(), chain, msg)
	assert.ErrorIs(t, err, ledger.ErrNoRevertReason)

	boom := errors.New("connection refused")
	chain.CallFn = func(ethereum.CallMsg) ([]byte, error) { return nil, boom }
	_, err = ledger.RevertReason(context.Background(), chain, msg)
	assert.Equal(t, boom, err)
}

func TestReplayMsg(t *testing.T) {
	to := common.Address{7}
	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID: big.NewInt(1), Nonce: 3, Gas: 50000, To: &to,
		Value: big.NewInt(9), Data: []byte{1, 2},
		GasFeeCap: big.NewInt(1), GasTipCap: big.NewInt(1),
	})
	msg := ledger.ReplayMsg(tx, common.Address{5})
	assert.Equal(t, common.Address{5}, msg.From)
	assert.Equal(t, &to, msg.To)
	assert.Equal(t, uint64(50000), msg.Gas)
	assert.Equal(t, big.NewInt(9), msg.Value)
	assert.Equal(t, []byte{1, 2}, msg.Data)
}
