// Package events defines the ledger's observable events, their durable log,
// and an in-process fan-out bus.
package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Type names an event.
type Type string

const (
	OrderCreated   Type = "OrderCreated"
	OrderAmended   Type = "OrderAmended"
	OrderCancelled Type = "OrderCancelled"
	OrderExpired   Type = "OrderExpired"
	OrderFulfilled Type = "OrderFulfilled"
	FeesWithdrawn  Type = "FeesWithdrawn"
	AssetAllowed   Type = "AssetAllowed"
)

// Event is one entry of the ledger's event log. Fields not relevant to the
// event's Type are left empty. Amounts are decimal strings of base units.
type Event struct {
	Seq  uint64 `json:"seq"`
	Type Type   `json:"type"`
	Time uint64 `json:"time"` // unix seconds

	OrderID uint64 `json:"orderId,omitempty"`
	Seller  string `json:"seller,omitempty"`
	Buyer   string `json:"buyer,omitempty"`
	Asset   string `json:"asset,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Price   string `json:"price,omitempty"`
	Expiry  uint64 `json:"expiry,omitempty"`

	// OrderFulfilled
	FeeRef   string `json:"feeRef,omitempty"`
	FeeAsset string `json:"feeAsset,omitempty"`

	// FeesWithdrawn
	To string `json:"to,omitempty"`

	// AssetAllowed
	Symbol string  `json:"symbol,omitempty"`
	Index  *uint64 `json:"index,omitempty"`
}

// Channels lists the subscription channels the event belongs to.
func (e *Event) Channels() []string {
	switch e.Type {
	case AssetAllowed:
		return []string{"assets"}
	case FeesWithdrawn:
		return []string{"fees", "account:" + e.To}
	case OrderFulfilled:
		return []string{"orders", orderChannel(e.OrderID), "fees", "account:" + e.Seller, "account:" + e.Buyer}
	default:
		return []string{"orders", orderChannel(e.OrderID), "account:" + e.Seller}
	}
}

func orderChannel(id uint64) string {
	return "order:" + strconv.FormatUint(id, 10)
}

func NewOrderCreated(now, id uint64, seller, asset common.Address, amount, price *uint256.Int, expiry uint64) *Event {
	return &Event{Type: OrderCreated, Time: now, OrderID: id, Seller: seller.Hex(), Asset: asset.Hex(), Amount: amount.Dec(), Price: price.Dec(), Expiry: expiry}
}

func NewOrderAmended(now, id uint64, seller common.Address, amount, price *uint256.Int, expiry uint64) *Event {
	return &Event{Type: OrderAmended, Time: now, OrderID: id, Seller: seller.Hex(), Amount: amount.Dec(), Price: price.Dec(), Expiry: expiry}
}

func NewOrderCancelled(now, id uint64, seller common.Address, refund *uint256.Int) *Event {
	return &Event{Type: OrderCancelled, Time: now, OrderID: id, Seller: seller.Hex(), Amount: refund.Dec()}
}

func NewOrderExpired(now, id uint64, seller common.Address, refund *uint256.Int, expiry uint64) *Event {
	return &Event{Type: OrderExpired, Time: now, OrderID: id, Seller: seller.Hex(), Amount: refund.Dec(), Expiry: expiry}
}

func NewOrderFulfilled(now, id uint64, seller, buyer, asset common.Address, amount, price, feeRef, feeAsset *uint256.Int) *Event {
	return &Event{
		Type: OrderFulfilled, Time: now, OrderID: id,
		Seller: seller.Hex(), Buyer: buyer.Hex(), Asset: asset.Hex(),
		Amount: amount.Dec(), Price: price.Dec(),
		FeeRef: feeRef.Dec(), FeeAsset: feeAsset.Dec(),
	}
}

func NewFeesWithdrawn(now uint64, to, asset common.Address, amount *uint256.Int) *Event {
	return &Event{Type: FeesWithdrawn, Time: now, To: to.Hex(), Asset: asset.Hex(), Amount: amount.Dec()}
}

func NewAssetAllowed(now uint64, asset common.Address, symbol string, index uint64) *Event {
	return &Event{Type: AssetAllowed, Time: now, Asset: asset.Hex(), Symbol: symbol, Index: &index}
}
