package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/celer-network/aave-gas-station/db"
	"github.com/celer-network/aave-gas-station/gasstation"
	"github.com/celer-network/aave-gas-station/log"
)

var (
	NamespaceSponsorship   = []byte("sph")
	NamespaceWalletHistory = []byte("slw")
)

var ErrNotFound = errors.New("sponsorship not found")

var logger = log.NewLogger("storage")

// Storage keeps sponsorship records by transaction hash, plus a per-wallet
// index ordered by start time.
type Storage struct {
	mu sync.Mutex
	db db.DB
}

var _ gasstation.Recorder = (*Storage)(nil)

func NewStorage(db db.DB) *Storage {
	return &Storage{
		db: db,
	}
}

// RecordSponsorship stores sp. A hash identifies one signed transaction, so
// the first record for a hash wins; a later attempt that re-signed the same
// transaction only hit the node's duplicate check. The one exception is a
// failed record whose transaction was confirmed later on, which is replaced.
func (s *Storage) RecordSponsorship(sp *gasstation.Sponsorship) error {
	if sp.TxHash == (common.Hash{}) {
		return errors.New("sponsorship has no transaction hash")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("encode sponsorship: %w", err)
	}

	stored, err := s.GetSponsorship(sp.TxHash)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	case stored.State == gasstation.StateFailed && sp.State == gasstation.StateConfirmed:
		if err := s.db.Set(NamespaceSponsorship, sp.TxHash.Bytes(), value); err != nil {
			return err
		}
		logger.Info().Str("tx", sp.TxHash.Hex()).Str("target", sp.Target.Hex()).Msg("Failed sponsorship confirmed later")
		return nil
	default:
		logger.Debug().Str("tx", sp.TxHash.Hex()).Msg("Sponsorship already recorded")
		return nil
	}

	tx := s.db.NewTx()
	defer tx.Discard()
	if err := tx.Set(NamespaceSponsorship, sp.TxHash.Bytes(), value); err != nil {
		return err
	}
	if err := tx.Set(NamespaceWalletHistory, walletKey(sp), nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Debug().Str("tx", sp.TxHash.Hex()).Str("target", sp.Target.Hex()).Str("state", sp.State.String()).
		Msg("Recorded sponsorship")
	return nil
}

func (s *Storage) GetSponsorship(hash common.Hash) (*gasstation.Sponsorship, error) {
	value, ok, err := s.db.Get(NamespaceSponsorship, hash.Bytes())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	sp := new(gasstation.Sponsorship)
	if err := json.Unmarshal(value, sp); err != nil {
		return nil, fmt.Errorf("decode sponsorship %s: %w", hash.Hex(), err)
	}
	return sp, nil
}

// ListSponsorships returns the sponsorships sent to wallet, oldest first.
func (s *Storage) ListSponsorships(wallet common.Address) ([]*gasstation.Sponsorship, error) {
	var hashes []common.Hash
	err := s.db.Iterate(NamespaceWalletHistory, wallet.Bytes(), func(key []byte, _ []byte) error {
		if len(key) != common.AddressLength+8+common.HashLength {
			return fmt.Errorf("malformed wallet index key %x", key)
		}
		hashes = append(hashes, common.BytesToHash(key[common.AddressLength+8:]))
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*gasstation.Sponsorship, 0, len(hashes))
	for _, hash := range hashes {
		sp, err := s.GetSponsorship(hash)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// walletKey is target | startedAt (big endian unix nanos) | hash.
func walletKey(sp *gasstation.Sponsorship) []byte {
	key := make([]byte, 0, common.AddressLength+8+common.HashLength)
	key = append(key, sp.Target.Bytes()...)
	key = binary.BigEndian.AppendUint64(key, uint64(sp.StartedAt.UnixNano()))
	return append(key, sp.TxHash.Bytes()...)
}
