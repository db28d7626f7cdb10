package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/asset"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/treasury"
)

// RegisterAsset whitelists id under symbol. Admin only.
func (l *Ledger) RegisterAsset(ctx context.Context, caller, id common.Address, symbol string) (a *asset.Asset, err error) {
	defer mon.Task()(&ctx)(&err)

	err = l.apply(func(o *op) error {
		if err := l.gate.Require(caller); err != nil {
			return err
		}
		if a, err = l.assets.Register(o.tx, id, symbol); err != nil {
			return err
		}
		return o.emit(events.NewAssetAllowed(o.now, a.ID, a.Symbol, a.Index))
	})
	if err != nil {
		return nil, err
	}

	l.log.Infow("asset_allowed", "asset", id.Hex(), "symbol", symbol, "index", a.Index)
	return a, nil
}

// WithdrawFees pays amount of the fees accrued in assetID out to `to`.
// Admin only.
func (l *Ledger) WithdrawFees(ctx context.Context, caller, to, assetID common.Address, amount *uint256.Int) (err error) {
	defer mon.Task()(&ctx)(&err)

	err = l.apply(func(o *op) error {
		if err := l.gate.Require(caller); err != nil {
			return err
		}
		if err := treasury.Withdraw(o.tx, to, assetID, amount); err != nil {
			return err
		}
		if err := o.emit(events.NewFeesWithdrawn(o.now, to, assetID, amount)); err != nil {
			return err
		}
		return o.escrow.Push(assetID, to, amount)
	})
	if err != nil {
		return err
	}

	l.log.Infow("fees_withdrawn", "asset", assetID.Hex(), "to", to.Hex(), "amount", l.format(amount))
	return nil
}
