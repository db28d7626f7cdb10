// Package treasury tracks protocol fees accrued per asset.
package treasury

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/errcode"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

// FeeRate is numerator/precision, e.g. 2/100.
type FeeRate struct {
	Numerator uint64
	Precision uint64
}

// Validate checks the rate is a proper fraction with a non-zero precision.
func (r FeeRate) Validate() error {
	if r.Precision == 0 {
		return fmt.Errorf("fee precision must be positive")
	}
	if r.Numerator > r.Precision {
		return fmt.Errorf("fee numerator %d exceeds precision %d", r.Numerator, r.Precision)
	}
	return nil
}

// Fee returns floor(amount * numerator / precision).
// overflow is true if amount * numerator does not fit in 256 bits.
func (r FeeRate) Fee(amount *uint256.Int) (fee *uint256.Int, overflow bool) {
	product, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(r.Numerator))
	if overflow {
		return nil, true
	}
	return product.Div(product, uint256.NewInt(r.Precision)), false
}

// Accrued returns the accrued fee balance of asset.
func Accrued(rd storage.Reader, asset common.Address) (*uint256.Int, error) {
	return storage.GetAmount(rd, storage.FeeKey(asset))
}

// Accrue adds amount to the fee balance of asset.
func Accrue(tx storage.ReadWriter, asset common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	cur, err := Accrued(tx, asset)
	if err != nil {
		return err
	}
	if _, overflow := cur.AddOverflow(cur, amount); overflow {
		return fmt.Errorf("accrued fees of %s overflow", asset.Hex())
	}
	return storage.PutAmount(tx, storage.FeeKey(asset), cur)
}

// Withdraw debits amount from the fee balance of asset. Authorization and
// the payout are the caller's concern.
//
// Returns InvalidWithdrawAmount if nothing is accrued or amount exceeds the
// accrued balance, and InvalidAddress if to is the zero address.
func Withdraw(tx storage.ReadWriter, to, asset common.Address, amount *uint256.Int) error {
	cur, err := Accrued(tx, asset)
	if err != nil {
		return err
	}
	if cur.IsZero() {
		return errcode.New(errcode.InvalidWithdrawAmount, "no fees accrued for %s", asset.Hex())
	}
	if amount.Gt(cur) {
		return errcode.New(errcode.InvalidWithdrawAmount, "amount %s exceeds accrued %s", amount.Dec(), cur.Dec())
	}
	if to == (common.Address{}) {
		return errcode.New(errcode.InvalidAddress, "zero recipient")
	}
	return storage.PutAmount(tx, storage.FeeKey(asset), cur.Sub(cur, amount))
}

// Balance is one asset's accrued fees.
type Balance struct {
	Asset  common.Address
	Amount *uint256.Int
}

// All lists every asset with a non-zero accrued balance.
func All(rd storage.Reader) ([]Balance, error) {
	var out []Balance
	err := rd.Scan(storage.FeePrefix(), nil, func(key, value []byte) error {
		asset, err := storage.AddressFromKeySuffix(key)
		if err != nil {
			return err
		}
		amt, err := uint256.FromDecimal(string(value))
		if err != nil {
			return fmt.Errorf("fee %s: %w", asset.Hex(), err)
		}
		out = append(out, Balance{Asset: asset, Amount: amt})
		return nil
	})
	return out, err
}
