package gasstation

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/celer-network/aave-gas-station/ledger"
	"github.com/celer-network/aave-gas-station/log"
	"github.com/celer-network/aave-gas-station/types"
	"github.com/celer-network/aave-gas-station/utils"
)

var logger = log.NewLogger("gasstation")

// FundingAccount is the custodial account that pays for top-ups. Its key
// never leaves this package.
type FundingAccount struct {
	address common.Address
	key     *ecdsa.PrivateKey
}

// NewFundingAccount checks that key controls expected.
func NewFundingAccount(key *ecdsa.PrivateKey, expected common.Address) (*FundingAccount, error) {
	address := crypto.PubkeyToAddress(key.PublicKey)
	if address != expected {
		return nil, fmt.Errorf("%w: key is %s, configured %s", ErrKeyMismatch, address.Hex(), expected.Hex())
	}
	return &FundingAccount{address: address, key: key}, nil
}

func (a *FundingAccount) Address() common.Address {
	return a.address
}

func (a *FundingAccount) sign(tx *types.PendingTransaction) (*types.SignedTransaction, error) {
	return utils.SignTransaction(tx, a.key)
}

// RelayConfig carries the static parameters of a top-up transfer.
type RelayConfig struct {
	ChainID         *big.Int
	GasAllowance    *big.Int
	GasLimit        uint64
	GasFeeCap       *big.Int
	GasTipCap       *big.Int
	Broadcast       ledger.RetryConfig
	Wait            ledger.WaitConfig
	RevertIsFailure bool
}

// Sponsorship is the record of one top-up attempt.
type Sponsorship struct {
	Target     common.Address `json:"target"`
	Funder     common.Address `json:"funder"`
	Nonce      uint64         `json:"nonce"`
	Value      *big.Int       `json:"value"`
	TxHash     common.Hash    `json:"transactionHash"`
	State      State          `json:"state"`
	Receipt    *types.Receipt `json:"receipt,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// Recorder persists finished sponsorships.
type Recorder interface {
	RecordSponsorship(s *Sponsorship) error
}

// Relay sponsors gas for under-funded wallets from one funding account.
// Sponsorships are serialised: the lock spans nonce fetch, signing,
// broadcast and confirmation, so two top-ups never race on a nonce.
type Relay struct {
	mu       sync.Mutex
	client   ledger.Client
	funding  *FundingAccount
	config   RelayConfig
	recorder Recorder

	// broadcast sponsorships whose confirmation was not observed, by target
	unconfirmed map[common.Address]*inflight
}

type inflight struct {
	sponsorship Sponsorship
	signed      *types.SignedTransaction
}

// NewRelay creates a relay. recorder may be nil.
func NewRelay(client ledger.Client, funding *FundingAccount, config RelayConfig, recorder Recorder) *Relay {
	return &Relay{
		client:   client,
		funding:  funding,
		config:   config,
		recorder: recorder,

		unconfirmed: make(map[common.Address]*inflight),
	}
}

func (r *Relay) FundingAddress() common.Address {
	return r.funding.Address()
}

// TopUp is Sponsor reduced to a delivered-and-confirmed boolean.
func (r *Relay) TopUp(ctx context.Context, target string) bool {
	_, err := r.Sponsor(ctx, target)
	return err == nil
}

// Sponsor transfers the gas allowance to target and waits for it to be mined.
// The returned Sponsorship is never nil; on failure its State is StateFailed
// and the error is a *SponsorError.
func (r *Relay) Sponsor(ctx context.Context, target string) (*Sponsorship, error) {
	s := &Sponsorship{
		Funder:    r.funding.Address(),
		Value:     new(big.Int).Set(r.config.GasAllowance),
		State:     StateIdle,
		StartedAt: time.Now().UTC(),
	}
	defer r.record(s)

	s.State = StateBuilding
	to, err := utils.ChecksumAddress(target)
	if err != nil {
		return r.fail(s, ledger.KindTerminal, err)
	}
	s.Target = to

	r.mu.Lock()
	defer r.mu.Unlock()

	resumed, err := r.resume(ctx, s)
	if err != nil {
		return r.fail(s, ledger.Classify(err), fmt.Errorf("resume: %w", err))
	}
	var signed *types.SignedTransaction
	if resumed {
		signed = r.unconfirmed[s.Target].signed
	} else if signed, err = r.send(ctx, s); err != nil {
		return s, err
	}
	return r.confirm(ctx, s, signed)
}

// send signs and broadcasts a fresh transfer for s.
func (r *Relay) send(ctx context.Context, s *Sponsorship) (*types.SignedTransaction, error) {
	nonce, err := r.client.NonceAt(ctx, s.Funder)
	if err != nil {
		_, err = r.fail(s, ledger.Classify(err), fmt.Errorf("fetch nonce: %w", err))
		return nil, err
	}
	s.Nonce = nonce

	pending := &types.PendingTransaction{
		ChainID:   r.config.ChainID,
		From:      s.Funder,
		Nonce:     nonce,
		To:        s.Target,
		Value:     s.Value,
		Gas:       r.config.GasLimit,
		GasFeeCap: r.config.GasFeeCap,
		GasTipCap: r.config.GasTipCap,
	}
	logger.Info().Str("target", s.Target.Hex()).Uint64("nonce", nonce).Str("value", s.Value.String()).
		Msg("Filling up wallet")

	signed, err := r.funding.sign(pending)
	if err != nil {
		_, err = r.fail(s, ledger.KindTerminal, fmt.Errorf("sign: %w", err))
		return nil, err
	}
	if signed.Sender != s.Funder {
		_, err = r.fail(s, ledger.KindTerminal, fmt.Errorf("%w: got %s", ErrSignerMismatch, signed.Sender.Hex()))
		return nil, err
	}
	s.TxHash = signed.Hash
	s.State = StateSigned

	if err := ledger.Broadcast(ctx, r.client, signed, r.config.Broadcast); err != nil {
		kind, err := classifyBroadcast(err)
		_, err = r.fail(s, kind, fmt.Errorf("broadcast: %w", err))
		return nil, err
	}
	return signed, nil
}

// resume picks up the earlier sponsorship of s.Target whose confirmation was
// never observed. While its nonce is unused or its receipt exists, s takes
// over that transaction instead of paying the allowance a second time.
func (r *Relay) resume(ctx context.Context, s *Sponsorship) (bool, error) {
	flight, ok := r.unconfirmed[s.Target]
	if !ok {
		return false, nil
	}
	prev := &flight.sponsorship
	receipt, err := r.client.TransactionReceipt(ctx, prev.TxHash)
	if err != nil {
		return false, err
	}
	if receipt == nil {
		nonce, err := r.client.NonceAt(ctx, s.Funder)
		if err != nil {
			return false, err
		}
		if nonce > prev.Nonce {
			logger.Warn().Str("tx", prev.TxHash.Hex()).Uint64("nonce", prev.Nonce).
				Msg("Unconfirmed sponsorship was dropped, sending a new one")
			delete(r.unconfirmed, s.Target)
			return false, nil
		}
		// still pending as far as the nonce goes; the node may have evicted it
		if _, err := r.client.SendRawTransaction(ctx, flight.signed.Raw); err != nil && !ledger.IsAlreadyKnown(err) {
			logger.Warn().Err(err).Str("tx", prev.TxHash.Hex()).Msg("Resending unconfirmed sponsorship failed")
		}
	}
	s.Nonce = prev.Nonce
	s.Value = prev.Value
	s.TxHash = prev.TxHash
	s.StartedAt = prev.StartedAt
	logger.Info().Str("tx", s.TxHash.Hex()).Str("target", s.Target.Hex()).Msg("Resuming unconfirmed sponsorship")
	return true, nil
}

// confirm waits for the broadcast transfer of s.
func (r *Relay) confirm(ctx context.Context, s *Sponsorship, signed *types.SignedTransaction) (*Sponsorship, error) {
	s.State = StateBroadcast
	logger.Info().Str("tx", s.TxHash.Hex()).Msg("Sponsorship broadcast, waiting for receipt")

	receipt, err := ledger.WaitMined(ctx, r.client, s.TxHash, r.config.Wait)
	if err != nil {
		kind := ledger.Classify(err)
		if errors.Is(err, ledger.ErrReceiptTimeout) {
			kind = ledger.KindRetryable
		}
		r.unconfirmed[s.Target] = &inflight{sponsorship: *s, signed: signed}
		return r.fail(s, kind, fmt.Errorf("confirm: %w", err))
	}
	delete(r.unconfirmed, s.Target)

	s.Receipt = types.NewReceipt(receipt)
	if !s.Receipt.Succeeded() {
		if r.config.RevertIsFailure {
			return r.fail(s, ledger.KindTerminal, fmt.Errorf("%w in block %d", ErrReverted, s.Receipt.BlockNumber))
		}
		logger.Warn().Str("tx", s.TxHash.Hex()).Msg("Sponsorship reverted, counting receipt as delivery")
	}

	s.State = StateConfirmed
	s.Error = ""
	s.FinishedAt = time.Now().UTC()
	logger.Info().Str("tx", s.TxHash.Hex()).Str("target", s.Target.Hex()).Str("value", s.Value.String()).
		Uint64("block", s.Receipt.BlockNumber).Msg("Sponsorship confirmed")
	return s, nil
}

func (r *Relay) fail(s *Sponsorship, kind ledger.Kind, err error) (*Sponsorship, error) {
	sponsorErr := &SponsorError{Stage: s.State, Kind: kind, Err: err}
	s.State = StateFailed
	s.Error = sponsorErr.Error()
	s.FinishedAt = time.Now().UTC()
	logger.Error().Err(err).Str("stage", sponsorErr.Stage.String()).Str("kind", kind.String()).
		Str("target", s.Target.Hex()).Msg("Error at gas station")
	return s, sponsorErr
}

// record stores attempts that reached the chain boundary; address
// validation failures are not worth keeping.
func (r *Relay) record(s *Sponsorship) {
	if r.recorder == nil || s.TxHash == (common.Hash{}) {
		return
	}
	if err := r.recorder.RecordSponsorship(s); err != nil {
		logger.Error().Err(err).Str("tx", s.TxHash.Hex()).Msg("Failed to record sponsorship")
	}
}
