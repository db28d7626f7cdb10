package account

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrStaleNonce            = errors.New("nonce too low")
)

// Session applies bank writes to the batch of the running operation.
// Thread-safe only under the store's writer lock.
type Session struct {
	tx      storage.ReadWriter
	custody common.Address
}

// BalanceOf returns holder's balance of asset, including this batch's writes.
func (s *Session) BalanceOf(asset, holder common.Address) (*uint256.Int, error) {
	return storage.GetAmount(s.tx, storage.BalanceKey(holder, asset))
}

// Allowance returns what owner allowed spender to move of asset.
func (s *Session) Allowance(owner, spender, asset common.Address) (*uint256.Int, error) {
	return storage.GetAmount(s.tx, storage.AllowanceKey(owner, spender, asset))
}

// TransferIn moves amount from `from` to `to` on the custody account's
// authority. Unless `from` is custody itself, the allowance `from` granted
// to custody is consumed.
func (s *Session) TransferIn(asset, from, to common.Address, amount *uint256.Int) error {
	if from != s.custody {
		key := storage.AllowanceKey(from, s.custody, asset)
		allowed, err := storage.GetAmount(s.tx, key)
		if err != nil {
			return err
		}
		if allowed.Lt(amount) {
			return fmt.Errorf("%w: %s allowed %s of %s, need %s", ErrInsufficientAllowance, from.Hex(), allowed.Dec(), asset.Hex(), amount.Dec())
		}
		if err := storage.PutAmount(s.tx, key, allowed.Sub(allowed, amount)); err != nil {
			return err
		}
	}
	return s.move(asset, from, to, amount)
}

// TransferOut moves amount of asset from custody to `to`.
func (s *Session) TransferOut(asset, to common.Address, amount *uint256.Int) error {
	return s.move(asset, s.custody, to, amount)
}

// Mint credits amount of asset to `to` out of thin air (devnet faucet).
func (s *Session) Mint(asset, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("mint to zero address")
	}
	key := storage.BalanceKey(to, asset)
	bal, err := storage.GetAmount(s.tx, key)
	if err != nil {
		return err
	}
	if _, overflow := bal.AddOverflow(bal, amount); overflow {
		return fmt.Errorf("balance of %s in %s overflows", to.Hex(), asset.Hex())
	}
	return storage.PutAmount(s.tx, key, bal)
}

// Approve sets (not increases) the allowance owner grants spender.
func (s *Session) Approve(owner, spender, asset common.Address, amount *uint256.Int) error {
	return storage.PutAmount(s.tx, storage.AllowanceKey(owner, spender, asset), amount)
}

// UseNonce consumes nonce for addr; it must exceed the last one used.
func (s *Session) UseNonce(addr common.Address, nonce uint64) error {
	key := storage.NonceKey(addr)
	last, err := storage.GetUint64(s.tx, key)
	if err != nil {
		return err
	}
	if nonce <= last {
		return fmt.Errorf("%w: got %d, last used %d", ErrStaleNonce, nonce, last)
	}
	return storage.PutUint64(s.tx, key, nonce)
}

func (s *Session) move(asset, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}
	if to == (common.Address{}) {
		return fmt.Errorf("transfer to zero address")
	}

	fromKey := storage.BalanceKey(from, asset)
	fromBal, err := storage.GetAmount(s.tx, fromKey)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, need %s", ErrInsufficientBalance, from.Hex(), fromBal.Dec(), asset.Hex(), amount.Dec())
	}

	toKey := storage.BalanceKey(to, asset)
	toBal, err := storage.GetAmount(s.tx, toKey)
	if err != nil {
		return err
	}
	if _, overflow := toBal.AddOverflow(toBal, amount); overflow {
		return fmt.Errorf("balance of %s in %s overflows", to.Hex(), asset.Hex())
	}

	if err := storage.PutAmount(s.tx, fromKey, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	return storage.PutAmount(s.tx, toKey, toBal)
}
