package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/asset"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/errcode"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/escrow"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/order"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/treasury"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
	"github.com/uhyunpark/hyperescrow/pkg/util"
)

// Order returns the order with id, or InvalidOrder.
func (l *Ledger) Order(ctx context.Context, id uint64) (o *order.Order, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		o, err = order.MustLoad(rd, id)
		return err
	})
	return o, err
}

// Summary returns the human-readable view of an order.
func (l *Ledger) Summary(ctx context.Context, id uint64) (s *order.Summary, err error) {
	now := util.UnixSeconds(l.clock)
	err = l.view(ctx, func(rd storage.Reader) error {
		o, err := order.MustLoad(rd, id)
		if err != nil {
			return err
		}
		symbol, err := l.assets.Symbol(rd, o.Asset)
		if err != nil {
			return err
		}
		s = o.Summarize(symbol, now)
		return nil
	})
	return s, err
}

// OrdersBySeller lists every order seller has posted, oldest first.
func (l *Ledger) OrdersBySeller(ctx context.Context, seller common.Address) (orders []*order.Order, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		orders, err = order.BySeller(rd, seller)
		return err
	})
	return orders, err
}

// NextOrderID returns the id the next created order will get.
func (l *Ledger) NextOrderID(ctx context.Context) (id uint64, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		id, err = order.NextID(rd)
		return err
	})
	return id, err
}

// IsAllowed reports whether id is a registered asset.
func (l *Ledger) IsAllowed(ctx context.Context, id common.Address) (ok bool, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		ok, err = l.assets.IsAllowed(rd, id)
		return err
	})
	return ok, err
}

// AssetByIndex returns the i-th registered asset, or InvalidIndex.
func (l *Ledger) AssetByIndex(ctx context.Context, i uint64) (a *asset.Asset, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		a, err = l.assets.ByIndex(rd, i)
		return err
	})
	return a, err
}

// Asset returns a registered asset, or InvalidAsset.
func (l *Ledger) Asset(ctx context.Context, id common.Address) (a *asset.Asset, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		a, err = l.assets.Get(rd, id)
		if err == nil && a == nil {
			err = errcode.New(errcode.InvalidAsset, "asset %s is not registered", id.Hex())
		}
		return err
	})
	return a, err
}

// Assets lists registered assets in registration order.
func (l *Ledger) Assets(ctx context.Context) (list []*asset.Asset, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		list, err = l.assets.List(rd)
		return err
	})
	return list, err
}

// AccruedFees returns the withdrawable fee balance of assetID.
func (l *Ledger) AccruedFees(ctx context.Context, assetID common.Address) (amt *uint256.Int, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		amt, err = treasury.Accrued(rd, assetID)
		return err
	})
	return amt, err
}

// Fees lists every asset with accrued fees.
func (l *Ledger) Fees(ctx context.Context) (fees []treasury.Balance, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		fees, err = treasury.All(rd)
		return err
	})
	return fees, err
}

// Custody returns the total units of assetID held in custody.
func (l *Ledger) Custody(ctx context.Context, assetID common.Address) (amt *uint256.Int, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		amt, err = escrow.Held(rd, assetID)
		return err
	})
	return amt, err
}

// Holdings lists the custody counter of every asset held.
func (l *Ledger) Holdings(ctx context.Context) (h []escrow.Holding, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		h, err = escrow.Holdings(rd)
		return err
	})
	return h, err
}

// Events returns up to limit logged events with Seq >= from.
func (l *Ledger) Events(ctx context.Context, from uint64, limit int) (evs []*events.Event, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		evs, err = events.Range(rd, from, limit)
		return err
	})
	return evs, err
}

// LastEventSeq returns the sequence number of the newest event.
func (l *Ledger) LastEventSeq(ctx context.Context) (seq uint64, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		seq, err = events.LastSeq(rd)
		return err
	})
	return seq, err
}

// FeeRate returns the fee numerator; see Precision.
func (l *Ledger) FeeRate() uint64 { return l.rate.Numerator }

// Precision returns the fee rate denominator.
func (l *Ledger) Precision() uint64 { return l.rate.Precision }

// MaxDuration returns the longest allowed order lifetime in seconds.
func (l *Ledger) MaxDuration() uint64 { return l.maxDur }

func (l *Ledger) Admin() common.Address { return l.gate.Admin() }

func (l *Ledger) ReferenceAsset() common.Address { return l.ref }

func (l *Ledger) CustodyAccount() common.Address { return l.escrow.Custody() }

// Decimals is the number of decimals amounts are rendered with.
func (l *Ledger) Decimals() int32 { return l.decimals }

// Now returns the ledger clock in unix seconds.
func (l *Ledger) Now() uint64 { return util.UnixSeconds(l.clock) }

func (l *Ledger) format(amt *uint256.Int) string {
	return util.FormatAmount(amt, l.decimals)
}
