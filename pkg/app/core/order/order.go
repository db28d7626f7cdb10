package order

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Status is the derived, human-readable state of an order.
type Status string

const (
	StatusActive              Status = "active"
	StatusExpiredPendingSweep Status = "active-but-expired-pending-sweep"
	StatusInactive            Status = "inactive"
)

// Order is an escrowed sell order.
//
// While Active, custody holds exactly Amount of Asset for this order.
// Active goes true → false exactly once (cancel, expiry sweep, fulfill).
type Order struct {
	ID     uint64
	Seller common.Address
	Asset  common.Address
	Amount *uint256.Int // units of Asset in escrow
	Price  *uint256.Int // in the reference currency
	Expiry uint64       // unix seconds
	Active bool
}

// Expired reports whether now is past the order's expiry.
func (o *Order) Expired(now uint64) bool {
	return now > o.Expiry
}

// Status derives the display status at time now.
func (o *Order) Status(now uint64) Status {
	switch {
	case !o.Active:
		return StatusInactive
	case o.Expired(now):
		return StatusExpiredPendingSweep
	default:
		return StatusActive
	}
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.Amount = new(uint256.Int).Set(o.Amount)
	c.Price = new(uint256.Int).Set(o.Price)
	return &c
}

// Summary is the human-readable order view.
type Summary struct {
	ID          uint64
	AssetSymbol string
	Seller      common.Address
	Amount      *uint256.Int
	Price       *uint256.Int
	Expiry      uint64
	Status      Status
}

func (o *Order) Summarize(symbol string, now uint64) *Summary {
	return &Summary{
		ID:          o.ID,
		AssetSymbol: symbol,
		Seller:      o.Seller,
		Amount:      new(uint256.Int).Set(o.Amount),
		Price:       new(uint256.Int).Set(o.Price),
		Expiry:      o.Expiry,
		Status:      o.Status(now),
	}
}
