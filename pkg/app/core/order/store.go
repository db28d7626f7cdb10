// Package order owns the escrowed order records and their persistence.
package order

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/errcode"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

var nextIDKey = storage.MetaKey("nextorder")

// record is the stored form; amounts are decimal strings.
type record struct {
	ID     uint64 `json:"id"`
	Seller string `json:"seller"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
	Expiry uint64 `json:"expiry"`
	Active bool   `json:"active"`
}

func toRecord(o *Order) *record {
	return &record{
		ID:     o.ID,
		Seller: o.Seller.Hex(),
		Asset:  o.Asset.Hex(),
		Amount: o.Amount.Dec(),
		Price:  o.Price.Dec(),
		Expiry: o.Expiry,
		Active: o.Active,
	}
}

func fromRecord(r *record) (*Order, error) {
	amount, err := uint256.FromDecimal(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("order %d: bad amount %q: %w", r.ID, r.Amount, err)
	}
	price, err := uint256.FromDecimal(r.Price)
	if err != nil {
		return nil, fmt.Errorf("order %d: bad price %q: %w", r.ID, r.Price, err)
	}
	return &Order{
		ID:     r.ID,
		Seller: common.HexToAddress(r.Seller),
		Asset:  common.HexToAddress(r.Asset),
		Amount: amount,
		Price:  price,
		Expiry: r.Expiry,
		Active: r.Active,
	}, nil
}

// Load returns the order, or nil if no order has that id.
func Load(rd storage.Reader, id uint64) (*Order, error) {
	var rec record
	ok, err := storage.GetJSON(rd, storage.OrderKey(id), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return fromRecord(&rec)
}

// MustLoad is Load that fails with InvalidOrder for an unknown id.
func MustLoad(rd storage.Reader, id uint64) (*Order, error) {
	o, err := Load(rd, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errcode.New(errcode.InvalidOrder, "order %d does not exist", id)
	}
	return o, nil
}

// Save writes the order and its seller index entry.
func Save(w storage.Writer, o *Order) error {
	if err := storage.PutJSON(w, storage.OrderKey(o.ID), toRecord(o)); err != nil {
		return err
	}
	return w.Set(storage.SellerOrderKey(o.Seller, o.ID), nil)
}

// NextID returns the id the next created order will receive (first is 1).
func NextID(rd storage.Reader) (uint64, error) {
	next, err := storage.GetUint64(rd, nextIDKey)
	if err != nil {
		return 0, err
	}
	if next == 0 {
		next = 1
	}
	return next, nil
}

// AllocateID reserves the next id. Ids are never reused.
func AllocateID(tx storage.ReadWriter) (uint64, error) {
	id, err := NextID(tx)
	if err != nil {
		return 0, err
	}
	if err := storage.PutUint64(tx, nextIDKey, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

// BySeller returns all orders (active or not) posted by seller, by id.
func BySeller(rd storage.Reader, seller common.Address) ([]*Order, error) {
	var out []*Order
	err := rd.Scan(storage.SellerOrderPrefix(seller), nil, func(key, _ []byte) error {
		id, err := storage.ParseSellerOrderKey(key)
		if err != nil {
			return err
		}
		o, err := Load(rd, id)
		if err != nil {
			return err
		}
		if o != nil {
			out = append(out, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ForEach visits every order in id order.
func ForEach(rd storage.Reader, fn func(*Order) error) error {
	return rd.Scan(storage.OrderPrefix(), nil, func(key, value []byte) error {
		var rec record
		var o *Order
		err := storage.GetJSONValue(key, value, &rec)
		if err == nil {
			o, err = fromRecord(&rec)
		}
		if err != nil {
			return err
		}
		return fn(o)
	})
}
