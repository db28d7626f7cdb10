package order

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/errcode"
)

// ValidateTerms checks amount and price are both non-zero.
func ValidateTerms(amount, price *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return errcode.New(errcode.InvalidAmount, "amount must be positive")
	}
	if price == nil || price.IsZero() {
		return errcode.New(errcode.InvalidPrice, "price must be positive")
	}
	return nil
}

// ValidateDuration checks 0 < seconds <= max.
func ValidateDuration(seconds, max uint64) error {
	if seconds == 0 {
		return errcode.New(errcode.InvalidDeadline, "duration must be positive")
	}
	if seconds > max {
		return errcode.New(errcode.InvalidDeadline, "duration %ds exceeds max %ds", seconds, max)
	}
	return nil
}

// CheckSeller fails with InvalidSender unless caller posted o.
func (o *Order) CheckSeller(caller common.Address) error {
	if caller != o.Seller {
		return errcode.New(errcode.InvalidSender, "%s is not the seller of order %d", caller.Hex(), o.ID)
	}
	return nil
}

// CheckActive fails with OrderInactive once the order has terminated.
func (o *Order) CheckActive() error {
	if !o.Active {
		return errcode.New(errcode.OrderInactive, "order %d is inactive", o.ID)
	}
	return nil
}
