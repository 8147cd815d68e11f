package gasstation

import (
	"errors"
	"fmt"

	"github.com/celer-network/aave-gas-station/ledger"
)

var (
	ErrKeyMismatch      = errors.New("funding key does not control the configured address")
	ErrSignerMismatch   = errors.New("recovered signer is not the funding account")
	ErrNonceConflict    = errors.New("funding account nonce already in use")
	ErrUnderpriced      = errors.New("configured gas price rejected by the node")
	ErrFundingExhausted = errors.New("funding account cannot cover the allowance")
	ErrReverted         = errors.New("sponsorship transaction reverted")
	ErrReceiptTimeout   = ledger.ErrReceiptTimeout
)

// SponsorError is returned by Relay.Sponsor. Stage is the last state the
// sponsorship reached before failing.
type SponsorError struct {
	Stage State
	Kind  ledger.Kind
	Err   error
}

func (e *SponsorError) Error() string {
	return fmt.Sprintf("sponsorship failed while %s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *SponsorError) Unwrap() error {
	return e.Err
}

// Retryable reports whether trying again later may succeed.
func (e *SponsorError) Retryable() bool {
	return e.Kind == ledger.KindRetryable
}

// classifyBroadcast maps a node rejection onto the relay's error vocabulary.
func classifyBroadcast(err error) (ledger.Kind, error) {
	switch {
	case ledger.IsNonceConflict(err):
		return ledger.KindTerminal, fmt.Errorf("%w: %v", ErrNonceConflict, err)
	case ledger.IsUnderpriced(err):
		return ledger.KindTerminal, fmt.Errorf("%w: %v", ErrUnderpriced, err)
	case ledger.IsInsufficientFunds(err):
		return ledger.KindTerminal, fmt.Errorf("%w: %v", ErrFundingExhausted, err)
	case ledger.IsInvalidSender(err):
		return ledger.KindTerminal, fmt.Errorf("%w: %v", ErrSignerMismatch, err)
	default:
		return ledger.Classify(err), err
	}
}
