package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/errcode"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/order"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/treasury"
)

// CreateOrder escrows amount of assetID from caller and lists it at price
// (reference currency) until now+duration. Returns the new order id.
func (l *Ledger) CreateOrder(ctx context.Context, caller, assetID common.Address, amount, price *uint256.Int, duration uint64) (id uint64, err error) {
	defer mon.Task()(&ctx)(&err)

	var expiry uint64
	err = l.apply(func(o *op) error {
		allowed, err := l.assets.IsAllowed(o.tx, assetID)
		if err != nil {
			return err
		}
		if !allowed {
			return errcode.New(errcode.InvalidAsset, "asset %s is not registered", assetID.Hex())
		}
		if err := l.checkTerms(amount, price); err != nil {
			return err
		}
		if expiry, err = l.expiry(o.now, duration); err != nil {
			return err
		}

		if id, err = order.AllocateID(o.tx); err != nil {
			return err
		}
		ord := &order.Order{
			ID:     id,
			Seller: caller,
			Asset:  assetID,
			Amount: new(uint256.Int).Set(amount),
			Price:  new(uint256.Int).Set(price),
			Expiry: expiry,
			Active: true,
		}
		if err := order.Save(o.tx, ord); err != nil {
			return err
		}
		if err := o.emit(events.NewOrderCreated(o.now, id, caller, assetID, amount, price, expiry)); err != nil {
			return err
		}

		return o.escrow.Pull(assetID, caller, amount)
	})
	if err != nil {
		return 0, err
	}

	l.log.Infow("order_created",
		"id", id,
		"seller", caller.Hex(),
		"asset", assetID.Hex(),
		"amount", l.format(amount),
		"price", l.format(price),
		"expiry", expiry,
	)
	return id, nil
}

// AmendOrder replaces the amount and price of an active order. The escrow
// is topped up from, or refunded to, the seller by the difference. With
// updateDeadline the expiry is re-anchored to now+duration.
func (l *Ledger) AmendOrder(ctx context.Context, caller common.Address, id uint64, newAmount, newPrice *uint256.Int, updateDeadline bool, duration uint64) (err error) {
	defer mon.Task()(&ctx)(&err)

	var ord *order.Order
	err = l.apply(func(o *op) error {
		ord, err = order.MustLoad(o.tx, id)
		if err != nil {
			return err
		}
		if err := ord.CheckSeller(caller); err != nil {
			return err
		}
		if err := l.checkTerms(newAmount, newPrice); err != nil {
			return err
		}
		if err := ord.CheckActive(); err != nil {
			return err
		}
		if updateDeadline {
			if ord.Expiry, err = l.expiry(o.now, duration); err != nil {
				return err
			}
		}

		oldAmount := ord.Amount
		ord.Amount = new(uint256.Int).Set(newAmount)
		ord.Price = new(uint256.Int).Set(newPrice)
		if err := order.Save(o.tx, ord); err != nil {
			return err
		}
		if err := o.emit(events.NewOrderAmended(o.now, id, ord.Seller, ord.Amount, ord.Price, ord.Expiry)); err != nil {
			return err
		}

		switch newAmount.Cmp(oldAmount) {
		case 1:
			return o.escrow.Pull(ord.Asset, ord.Seller, new(uint256.Int).Sub(newAmount, oldAmount))
		case -1:
			return o.escrow.Push(ord.Asset, ord.Seller, new(uint256.Int).Sub(oldAmount, newAmount))
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.log.Infow("order_amended",
		"id", id,
		"amount", l.format(ord.Amount),
		"price", l.format(ord.Price),
		"expiry", ord.Expiry,
	)
	return nil
}

// CancelOrder deactivates an active order and refunds its escrow to the
// seller.
func (l *Ledger) CancelOrder(ctx context.Context, caller common.Address, id uint64) (err error) {
	defer mon.Task()(&ctx)(&err)

	var ord *order.Order
	err = l.apply(func(o *op) error {
		ord, err = order.MustLoad(o.tx, id)
		if err != nil {
			return err
		}
		if err := ord.CheckSeller(caller); err != nil {
			return err
		}
		if err := ord.CheckActive(); err != nil {
			return err
		}

		ord.Active = false
		if err := order.Save(o.tx, ord); err != nil {
			return err
		}
		if err := o.emit(events.NewOrderCancelled(o.now, id, ord.Seller, ord.Amount)); err != nil {
			return err
		}

		return o.escrow.Push(ord.Asset, ord.Seller, ord.Amount)
	})
	if err != nil {
		return err
	}

	l.log.Infow("order_cancelled", "id", id, "refund", l.format(ord.Amount))
	return nil
}

// Outcome reports what FulfillOrder did.
type Outcome struct {
	OrderID uint64
	// Expired means the order was past its expiry: it was swept and the
	// seller refunded, and nothing was bought.
	Expired bool

	FeeRef         *uint256.Int // reference-currency fee retained
	FeeAsset       *uint256.Int // asset-side fee retained
	BuyerReceives  *uint256.Int // units of the asset delivered to the buyer
	SellerReceives *uint256.Int // reference currency paid to the seller
}

// FulfillOrder buys an active order for caller. If the order has expired it
// is swept instead: deactivated and refunded to its seller, and the call
// still succeeds with Outcome.Expired set.
func (l *Ledger) FulfillOrder(ctx context.Context, caller common.Address, id uint64) (out *Outcome, err error) {
	defer mon.Task()(&ctx)(&err)

	var ord *order.Order
	err = l.apply(func(o *op) error {
		out = &Outcome{OrderID: id}
		ord, err = order.MustLoad(o.tx, id)
		if err != nil {
			return err
		}
		// Inactive orders were already refunded; an expired one is not
		// swept twice.
		if err := ord.CheckActive(); err != nil {
			return err
		}

		if ord.Expired(o.now) {
			out.Expired = true
			ord.Active = false
			if err := order.Save(o.tx, ord); err != nil {
				return err
			}
			if err := o.emit(events.NewOrderExpired(o.now, id, ord.Seller, ord.Amount, ord.Expiry)); err != nil {
				return err
			}
			return o.escrow.Push(ord.Asset, ord.Seller, ord.Amount)
		}

		balance, err := o.escrow.BalanceOf(l.ref, caller)
		if err != nil {
			return err
		}
		if balance.Lt(ord.Price) {
			return errcode.New(errcode.InsufficientFunds, "balance %s below price %s", balance.Dec(), ord.Price.Dec())
		}

		feeRef, overflow := l.rate.Fee(ord.Price)
		if overflow {
			return errcode.New(errcode.InvalidPrice, "fee on price %s overflows", ord.Price.Dec())
		}
		feeAsset, overflow := l.rate.Fee(ord.Amount)
		if overflow {
			return errcode.New(errcode.InvalidAmount, "fee on amount %s overflows", ord.Amount.Dec())
		}
		out.FeeRef = feeRef
		out.FeeAsset = feeAsset
		out.SellerReceives = new(uint256.Int).Sub(ord.Price, feeRef)
		out.BuyerReceives = new(uint256.Int).Sub(ord.Amount, feeAsset)

		ord.Active = false
		if err := order.Save(o.tx, ord); err != nil {
			return err
		}
		if err := treasury.Accrue(o.tx, l.ref, feeRef); err != nil {
			return err
		}
		if err := treasury.Accrue(o.tx, ord.Asset, feeAsset); err != nil {
			return err
		}
		ev := events.NewOrderFulfilled(o.now, id, ord.Seller, caller, ord.Asset, ord.Amount, ord.Price, feeRef, feeAsset)
		if err := o.emit(ev); err != nil {
			return err
		}

		if err := o.escrow.Pull(l.ref, caller, feeRef); err != nil {
			return err
		}
		if err := o.escrow.PullTo(l.ref, caller, ord.Seller, out.SellerReceives); err != nil {
			return err
		}
		return o.escrow.Push(ord.Asset, caller, out.BuyerReceives)
	})
	if err != nil {
		return nil, err
	}

	if out.Expired {
		l.log.Infow("order_expired", "id", id, "refund", l.format(ord.Amount), "expiry", ord.Expiry)
	} else {
		l.log.Infow("order_fulfilled",
			"id", id,
			"buyer", caller.Hex(),
			"seller", ord.Seller.Hex(),
			"fee_ref", l.format(out.FeeRef),
			"fee_asset", l.format(out.FeeAsset),
		)
	}
	return out, nil
}

// checkTerms validates amount and price, including that the fee on each
// can be computed without overflow.
func (l *Ledger) checkTerms(amount, price *uint256.Int) error {
	if err := order.ValidateTerms(amount, price); err != nil {
		return err
	}
	if _, overflow := l.rate.Fee(amount); overflow {
		return errcode.New(errcode.InvalidAmount, "amount %s too large", amount.Dec())
	}
	if _, overflow := l.rate.Fee(price); overflow {
		return errcode.New(errcode.InvalidPrice, "price %s too large", price.Dec())
	}
	return nil
}

func (l *Ledger) expiry(now, duration uint64) (uint64, error) {
	if err := order.ValidateDuration(duration, l.maxDur); err != nil {
		return 0, err
	}
	if now+duration < now {
		return 0, errcode.New(errcode.InvalidDeadline, "expiry overflows")
	}
	return now + duration, nil
}
