package api

// API response types for REST endpoints and WebSocket messages.
// Amounts are decimal strings of base units; the *Display fields render
// them with the ledger's decimals.

import (
	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
)

// ==============================
// REST Response Types
// ==============================

// ParamsInfo is the ledger's fixed configuration.
type ParamsInfo struct {
	Admin          string `json:"admin"`
	Custody        string `json:"custody"`
	ReferenceAsset string `json:"referenceAsset"`
	FeeRate        uint64 `json:"feeRate"`     // numerator
	Precision      uint64 `json:"precision"`   // denominator
	MaxDuration    uint64 `json:"maxDuration"` // seconds
	Decimals       int32  `json:"decimals"`
	ChainID        int64  `json:"chainId"`
}

// LedgerStatus is a snapshot of the ledger's aggregate state.
type LedgerStatus struct {
	StateHash    string       `json:"stateHash"`
	NextOrderID  uint64       `json:"nextOrderId"`
	LastEventSeq uint64       `json:"lastEventSeq"`
	Now          uint64       `json:"now"` // unix seconds
	Custody      []AmountInfo `json:"custody"`
	Fees         []AmountInfo `json:"fees"`
}

// AmountInfo is an amount of one asset.
type AmountInfo struct {
	Asset   string `json:"asset"`
	Symbol  string `json:"symbol,omitempty"`
	Amount  string `json:"amount"`
	Display string `json:"display"`
}

// AssetInfo is a registered asset.
type AssetInfo struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Index   uint64 `json:"index"`
}

// OrderInfo is the raw order record plus its derived status.
type OrderInfo struct {
	ID            uint64 `json:"id"`
	Seller        string `json:"seller"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	AmountDisplay string `json:"amountDisplay"`
	Price         string `json:"price"`
	PriceDisplay  string `json:"priceDisplay"`
	Expiry        uint64 `json:"expiry"`
	Active        bool   `json:"active"`
	Status        string `json:"status"`
}

// OrderSummary is the human-readable order view.
type OrderSummary struct {
	ID          uint64 `json:"id"`
	AssetSymbol string `json:"assetSymbol"`
	Seller      string `json:"seller"`
	Amount      string `json:"amount"` // display units
	Price       string `json:"price"`  // display units
	Expiry      uint64 `json:"expiry"`
	Status      string `json:"status"`
}

// AccountInfo is a bank holder's state.
type AccountInfo struct {
	Address  string       `json:"address"`
	Nonce    uint64       `json:"nonce"` // last consumed
	Balances []AmountInfo `json:"balances"`
}

// BalanceInfo is one balance plus the allowance granted to custody.
type BalanceInfo struct {
	Address string `json:"address"`
	AmountInfo
	Allowance string `json:"allowance"`
}

// EventsPage is a slice of the event log.
type EventsPage struct {
	Events []*events.Event `json:"events"`
	Next   uint64          `json:"next"` // pass as ?from= to continue
}

// ==============================
// Request/Response Types
// ==============================

// SubmitResponse is returned for an accepted signed action.
type SubmitResponse struct {
	Status  string       `json:"status"`
	Type    string       `json:"type"`
	Signer  string       `json:"signer"`
	Nonce   uint64       `json:"nonce"`
	OrderID uint64       `json:"orderId,omitempty"`
	Outcome *OutcomeInfo `json:"outcome,omitempty"`
	Asset   *AssetInfo   `json:"asset,omitempty"`
}

// OutcomeInfo reports a fulfillment.
type OutcomeInfo struct {
	Expired        bool   `json:"expired"`
	FeeRef         string `json:"feeRef,omitempty"`
	FeeAsset       string `json:"feeAsset,omitempty"`
	BuyerReceives  string `json:"buyerReceives,omitempty"`
	SellerReceives string `json:"sellerReceives,omitempty"`
}

// FaucetRequest mints devnet funds.
type FaucetRequest struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"` // display units, e.g. "1.5"
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients to subscribe/unsubscribe
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["orders", "order:1", "account:0x..."]
}

// EventMessage pushes one ledger event to a channel's subscribers.
type EventMessage struct {
	Type    string        `json:"type"` // always "event"
	Channel string        `json:"channel"`
	Event   *events.Event `json:"event"`
}
