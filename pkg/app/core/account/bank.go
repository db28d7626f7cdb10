// Package account is the in-process asset bank: per-holder balances,
// ERC-20 style allowances, and signed-request nonces, all kept in the
// ledger's Pebble store.
package account

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/escrow"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

// Bank is the reference escrow.Bank.
// Writes outside a ledger operation take their own store batch.
type Bank struct {
	store   *storage.PebbleStore
	custody common.Address
}

// NewBank creates a bank whose custody account is the spender of every
// TransferIn.
func NewBank(store *storage.PebbleStore, custody common.Address) *Bank {
	return &Bank{store: store, custody: custody}
}

// Session implements escrow.Bank.
func (b *Bank) Session(tx storage.ReadWriter) escrow.Transfers {
	return b.Begin(tx)
}

// Begin returns the concrete session for tx.
func (b *Bank) Begin(tx storage.ReadWriter) *Session {
	return &Session{tx: tx, custody: b.custody}
}

// Custody returns the custody account address.
func (b *Bank) Custody() common.Address { return b.custody }

// Balance reads committed state.
func (b *Bank) Balance(asset, holder common.Address) (*uint256.Int, error) {
	return storage.GetAmount(b.store, storage.BalanceKey(holder, asset))
}

// Allowance reads committed state.
func (b *Bank) Allowance(owner, spender, asset common.Address) (*uint256.Int, error) {
	return storage.GetAmount(b.store, storage.AllowanceKey(owner, spender, asset))
}

// Nonce returns the last nonce addr consumed (0 if none).
func (b *Bank) Nonce(addr common.Address) (uint64, error) {
	return storage.GetUint64(b.store, storage.NonceKey(addr))
}

// Account returns the holder's nonce and non-zero balances.
func (b *Bank) Account(addr common.Address) (*Account, error) {
	nonce, err := b.Nonce(addr)
	if err != nil {
		return nil, err
	}
	acc := &Account{Address: addr, Nonce: nonce}
	err = b.store.Scan(storage.BalancePrefix(addr), nil, func(key, value []byte) error {
		asset, err := storage.AddressFromKeySuffix(key)
		if err != nil {
			return err
		}
		amt, err := uint256.FromDecimal(string(value))
		if err != nil {
			return err
		}
		acc.Balances = append(acc.Balances, Balance{Asset: asset, Amount: amt})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Mint credits `to` in its own batch.
func (b *Bank) Mint(asset, to common.Address, amount *uint256.Int) error {
	return b.store.Update(func(tx *storage.Batch) error {
		return b.Begin(tx).Mint(asset, to, amount)
	})
}

// Approve sets owner's allowance for spender in its own batch.
func (b *Bank) Approve(owner, spender, asset common.Address, amount *uint256.Int) error {
	return b.store.Update(func(tx *storage.Batch) error {
		return b.Begin(tx).Approve(owner, spender, asset, amount)
	})
}

// UseNonce consumes a signed-request nonce in its own batch, so the nonce
// stays consumed whatever happens to the request it authorized.
func (b *Bank) UseNonce(addr common.Address, nonce uint64) error {
	return b.store.Update(func(tx *storage.Batch) error {
		return b.Begin(tx).UseNonce(addr, nonce)
	})
}

var (
	_ escrow.Bank      = (*Bank)(nil)
	_ escrow.Transfers = (*Session)(nil)
)
