package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/celer-network/aave-gas-station/types"
)

var (
	ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")
	errPending        = errors.New("transaction pending")
)

// WaitConfig bounds receipt polling. The interval grows exponentially from
// PollInterval to MaxPollInterval; Timeout is a hard limit.
type WaitConfig struct {
	Timeout         time.Duration
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

// RetryConfig bounds broadcast retries of transient failures.
type RetryConfig struct {
	Retries  int
	Interval time.Duration
}

func (c WaitConfig) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.PollInterval
	b.MaxInterval = c.MaxPollInterval
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	return b
}

// WaitMined polls for the receipt of hash until it shows up, the timeout
// passes or ctx is done. Transient RPC errors are polled through; other
// errors abort the wait.
func WaitMined(ctx context.Context, client Client, hash common.Hash, cfg WaitConfig) (*ethtypes.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var receipt *ethtypes.Receipt
	var lastErr error
	op := func() error {
		r, err := client.TransactionReceipt(waitCtx, hash)
		if err != nil {
			lastErr = err
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if r == nil {
			return errPending
		}
		receipt = r
		return nil
	}
	notify := func(err error, next time.Duration) {
		if !errors.Is(err, errPending) {
			logger.Warn().Err(err).Str("tx", hash.Hex()).Dur("next", next).Msg("Receipt lookup failed, retrying")
		}
	}

	err := backoff.RetryNotify(op, backoff.WithContext(cfg.backOff(), waitCtx), notify)
	if err == nil {
		return receipt, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errPending) {
		if lastErr != nil && !errors.Is(lastErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s (last error: %v)", ErrReceiptTimeout, cfg.Timeout, lastErr)
		}
		return nil, fmt.Errorf("%w after %s", ErrReceiptTimeout, cfg.Timeout)
	}
	return nil, err
}

// Broadcast submits a signed transaction, retrying transient failures. An
// "already known" answer to a retry, or a nonce conflict on a retry while the
// transaction itself has a receipt, means an earlier attempt reached the node
// and counts as accepted.
func Broadcast(ctx context.Context, client Client, tx *types.SignedTransaction, cfg RetryConfig) error {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		hash, err := client.SendRawTransaction(ctx, tx.Raw)
		if err != nil {
			if attempt > 1 && IsAlreadyKnown(err) {
				logger.Info().Str("tx", tx.Hash.Hex()).Int("attempt", attempt).Msg("Transaction already known to node")
				return nil
			}
			if attempt > 1 && IsNonceConflict(err) {
				// an earlier attempt may have landed and been mined already
				if receipt, rerr := client.TransactionReceipt(ctx, tx.Hash); rerr == nil && receipt != nil {
					logger.Info().Str("tx", tx.Hash.Hex()).Int("attempt", attempt).Msg("Transaction already mined")
					return nil
				}
			}
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if hash != (common.Hash{}) && hash != tx.Hash {
			logger.Warn().Str("expected", tx.Hash.Hex()).Str("returned", hash.Hex()).Msg("Node returned a different transaction hash")
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Warn().Err(err).Str("tx", tx.Hash.Hex()).Int("attempt", attempt).Dur("next", next).Msg("Broadcast failed, retrying")
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}
