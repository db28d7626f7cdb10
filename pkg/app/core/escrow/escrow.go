// Package escrow moves assets between holders and the ledger's custody
// account through an external Bank, and keeps a per-asset custody counter.
package escrow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/errcode"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

// DefaultCustody is the custody account used when none is configured.
var DefaultCustody = common.BytesToAddress(crypto.Keccak256([]byte("hyperescrow/custody"))[12:])

// Transfers are the asset-transfer calls the ledger makes, bound to the
// storage batch of the running operation.
type Transfers interface {
	// TransferIn moves amount of asset from `from` to `to`, spending the
	// allowance `from` granted to the custody account.
	TransferIn(asset, from, to common.Address, amount *uint256.Int) error
	// TransferOut moves amount of asset from custody to `to`.
	TransferOut(asset, to common.Address, amount *uint256.Int) error
	BalanceOf(asset, holder common.Address) (*uint256.Int, error)
}

// Bank opens transfer sessions inside an operation's batch, so a failed
// operation discards its transfers together with its state changes.
type Bank interface {
	Session(tx storage.ReadWriter) Transfers
}

// Ledger is the transfer discipline of the escrow.
type Ledger struct {
	custody common.Address
	bank    Bank
}

func New(custody common.Address, bank Bank) *Ledger {
	return &Ledger{custody: custody, bank: bank}
}

// Custody returns the custody account address.
func (l *Ledger) Custody() common.Address { return l.custody }

// Begin binds the ledger to tx.
func (l *Ledger) Begin(tx storage.ReadWriter) *Session {
	return &Session{custody: l.custody, tx: tx, bank: l.bank.Session(tx)}
}

// Held returns the custody counter of asset.
func Held(rd storage.Reader, asset common.Address) (*uint256.Int, error) {
	return storage.GetAmount(rd, storage.CustodyKey(asset))
}

// Holding is one asset's custody counter.
type Holding struct {
	Asset  common.Address
	Amount *uint256.Int
}

// Holdings lists every asset with a non-zero custody counter.
func Holdings(rd storage.Reader) ([]Holding, error) {
	var out []Holding
	err := rd.Scan(storage.CustodyPrefix(), nil, func(key, value []byte) error {
		asset, err := storage.AddressFromKeySuffix(key)
		if err != nil {
			return err
		}
		amt, err := uint256.FromDecimal(string(value))
		if err != nil {
			return fmt.Errorf("custody %s: %w", asset.Hex(), err)
		}
		out = append(out, Holding{Asset: asset, Amount: amt})
		return nil
	})
	return out, err
}

// Session performs transfers within one operation.
// Zero amounts are no-ops. Bank failures surface as TransferFailed.
type Session struct {
	custody common.Address
	tx      storage.ReadWriter
	bank    Transfers
}

// Pull moves amount of asset from `from` into custody.
func (s *Session) Pull(asset, from common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := s.bank.TransferIn(asset, from, s.custody, amount); err != nil {
		return errcode.Wrap(errcode.TransferFailed, err, "pull %s of %s from %s", amount.Dec(), asset.Hex(), from.Hex())
	}
	return s.adjust(asset, amount, true)
}

// PullTo moves amount of asset from `from` straight to `to`, bypassing
// custody.
func (s *Session) PullTo(asset, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := s.bank.TransferIn(asset, from, to, amount); err != nil {
		return errcode.Wrap(errcode.TransferFailed, err, "pull %s of %s from %s to %s", amount.Dec(), asset.Hex(), from.Hex(), to.Hex())
	}
	return nil
}

// Push moves amount of asset out of custody to `to`. The custody account
// itself is not a valid recipient.
func (s *Session) Push(asset, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if to == s.custody {
		return errcode.New(errcode.InvalidAddress, "cannot push %s to the custody account", asset.Hex())
	}
	if err := s.adjust(asset, amount, false); err != nil {
		return err
	}
	if err := s.bank.TransferOut(asset, to, amount); err != nil {
		return errcode.Wrap(errcode.TransferFailed, err, "push %s of %s to %s", amount.Dec(), asset.Hex(), to.Hex())
	}
	return nil
}

// BalanceOf reads a holder's bank balance as seen by this operation.
func (s *Session) BalanceOf(asset, holder common.Address) (*uint256.Int, error) {
	return s.bank.BalanceOf(asset, holder)
}

func (s *Session) adjust(asset common.Address, amount *uint256.Int, in bool) error {
	key := storage.CustodyKey(asset)
	held, err := storage.GetAmount(s.tx, key)
	if err != nil {
		return err
	}
	if in {
		if _, overflow := held.AddOverflow(held, amount); overflow {
			return fmt.Errorf("custody of %s overflows", asset.Hex())
		}
	} else {
		if held.Lt(amount) {
			return fmt.Errorf("custody of %s underflows: held %s, releasing %s", asset.Hex(), held.Dec(), amount.Dec())
		}
		held.Sub(held, amount)
	}
	return storage.PutAmount(s.tx, key, held)
}
