package account

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account is a read-only view of a bank holder.
type Account struct {
	Address  common.Address // EVM 20-byte address (0x...)
	Nonce    uint64         // Last consumed signed-request nonce (replay protection)
	Balances []Balance      // Non-zero balances, ordered by asset address
}

// Balance is a holder's balance of one asset, in base units.
type Balance struct {
	Asset  common.Address
	Amount *uint256.Int
}

// BalanceOf returns the account's balance of asset (zero if none).
func (a *Account) BalanceOf(asset common.Address) *uint256.Int {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return new(uint256.Int).Set(b.Amount)
		}
	}
	return new(uint256.Int)
}
