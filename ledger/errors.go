package ledger

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	ethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Kind tells callers whether repeating a failed call can succeed.
type Kind int

const (
	KindTerminal Kind = iota
	KindRetryable
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	default:
		return "terminal"
	}
}

// Node error messages. These are matched as substrings because they arrive as
// JSON-RPC error strings, not typed values.
const (
	msgAlreadyKnown        = "already known"
	msgNonceTooLow         = "nonce too low"
	msgReplacementUnderpr  = "replacement transaction underpriced"
	msgInsufficientFunds   = "insufficient funds"
	msgInvalidSender       = "invalid sender"
	msgFeeCapTooLow        = "fee cap less than block base fee"
	msgMaxFeeTooLow        = "max fee per gas less than block base fee"
	msgIntrinsicGasTooLow  = "intrinsic gas too low"
	msgRateLimited         = "rate limit"
	msgTooManyRequests     = "too many requests"
	msgConnectionRefused   = "connection refused"
	msgConnectionReset     = "connection reset"
	msgTimeout             = "timeout"
	msgHeaderTimeout       = "i/o timeout"
	msgServiceUnavailable  = "service unavailable"
	msgTransactionUnderpri = "transaction underpriced"
)

var retryableMessages = []string{
	msgRateLimited,
	msgTooManyRequests,
	msgConnectionRefused,
	msgConnectionReset,
	msgTimeout,
	msgHeaderTimeout,
	msgServiceUnavailable,
}

// Classify splits RPC failures into transient transport problems, which are
// worth retrying, and everything else.
func Classify(err error) Kind {
	if err == nil {
		return KindTerminal
	}
	if errors.Is(err, context.Canceled) {
		return KindTerminal
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindRetryable
	}
	var httpErr ethrpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= http.StatusInternalServerError {
			return KindRetryable
		}
		return KindTerminal
	}
	msg := strings.ToLower(err.Error())
	if IsNonceConflict(err) {
		return KindTerminal
	}
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return KindRetryable
		}
	}
	return KindTerminal
}

func IsRetryable(err error) bool {
	return Classify(err) == KindRetryable
}

// IsAlreadyKnown reports that the node already holds the exact transaction.
func IsAlreadyKnown(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), msgAlreadyKnown)
}

// IsNonceConflict reports that the nonce is already used, either mined or by
// a different pending transaction.
func IsNonceConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, msgNonceTooLow) ||
		strings.Contains(msg, msgReplacementUnderpr) ||
		strings.Contains(msg, msgAlreadyKnown)
}

// IsUnderpriced reports a fee cap the node refuses outright.
func IsUnderpriced(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, msgFeeCapTooLow) ||
		strings.Contains(msg, msgMaxFeeTooLow) ||
		strings.Contains(msg, msgIntrinsicGasTooLow) ||
		(strings.Contains(msg, msgTransactionUnderpri) && !strings.Contains(msg, msgReplacementUnderpr))
}

func IsInsufficientFunds(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), msgInsufficientFunds)
}

func IsInvalidSender(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), msgInvalidSender)
}
