package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethrpc "github.com/ethereum/go-ethereum/rpc"
)

var ErrNoRevertReason = errors.New("no revert reason")

// ReplayMsg turns a signed transaction back into the call that executes it.
func ReplayMsg(tx *ethtypes.Transaction, from common.Address) ethereum.CallMsg {
	return ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
}

// RevertReason replays msg against the latest state and decodes the revert
// payload. Some providers put the payload in the error data ("Reverted 0x..."),
// others return it as the call result.
func RevertReason(ctx context.Context, client Client, msg ethereum.CallMsg) (string, error) {
	out, err := client.CallContract(ctx, msg)
	if err != nil {
		var dataErr ethrpc.DataError
		if errors.As(err, &dataErr) {
			if data, ok := dataErr.ErrorData().(string); ok {
				return decodeRevert(strings.TrimPrefix(data, "Reverted "))
			}
		}
		if text := err.Error(); strings.HasPrefix(text, "execution reverted: ") {
			return strings.TrimPrefix(text, "execution reverted: "), nil
		}
		return "", err
	}
	return unpackRevert(out)
}

func decodeRevert(data string) (string, error) {
	if !strings.HasPrefix(data, "0x") {
		data = "0x" + data
	}
	if len(data)%2 == 1 {
		data = "0x0" + data[2:]
	}
	b, err := hexutil.Decode(data)
	if err != nil {
		return "", err
	}
	return unpackRevert(b)
}

func unpackRevert(b []byte) (string, error) {
	if len(b) == 0 {
		return "", ErrNoRevertReason
	}
	reason, err := abi.UnpackRevert(b)
	if err != nil {
		return "", ErrNoRevertReason
	}
	return reason, nil
}
