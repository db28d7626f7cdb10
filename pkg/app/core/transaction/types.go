// Package transaction is the signed-action envelope submitted to the
// ledger: a JSON payload plus the EIP-712 signature of its author.
package transaction

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/crypto"
)

// ActionType names a ledger operation
type ActionType string

const (
	ActionCreate        ActionType = "create"
	ActionAmend         ActionType = "amend"
	ActionCancel        ActionType = "cancel"
	ActionFulfill       ActionType = "fulfill"
	ActionRegisterAsset ActionType = "register_asset"
	ActionWithdrawFees  ActionType = "withdraw_fees"
	ActionApprove       ActionType = "approve" // allowance to the custody account
)

// SignedAction is one signed request.
type SignedAction struct {
	Action    ActionPayload `json:"action"`
	Signature string        `json:"signature"` // Hex-encoded signature (0x...)
}

// ActionPayload carries the fields of every action type; the ones an
// action does not use stay empty. Numbers are decimal strings.
type ActionPayload struct {
	Type           ActionType `json:"type"`
	Signer         string     `json:"signer"`             // Ethereum address (0x...)
	Nonce          string     `json:"nonce"`              // uint64 as string
	OrderID        string     `json:"order_id,omitempty"` // uint64 as string
	Asset          string     `json:"asset,omitempty"`
	Amount         string     `json:"amount,omitempty"` // base units
	Price          string     `json:"price,omitempty"`  // base units of the reference asset
	Duration       string     `json:"duration,omitempty"`
	UpdateDeadline bool       `json:"update_deadline,omitempty"`
	To             string     `json:"to,omitempty"`
	Symbol         string     `json:"symbol,omitempty"`
}

// Action is a decoded payload.
type Action struct {
	Type           ActionType
	Signer         common.Address
	Nonce          uint64
	OrderID        uint64
	Asset          common.Address
	Amount         *uint256.Int
	Price          *uint256.Int
	Duration       uint64
	UpdateDeadline bool
	To             common.Address
	Symbol         string
}

// Decode parses the payload's numeric and address fields.
func (p *ActionPayload) Decode() (*Action, error) {
	a := &Action{
		Type:           p.Type,
		UpdateDeadline: p.UpdateDeadline,
		Symbol:         p.Symbol,
		Amount:         new(uint256.Int),
		Price:          new(uint256.Int),
	}
	var err error
	if a.Signer, err = parseAddress("signer", p.Signer); err != nil {
		return nil, err
	}
	if a.Asset, err = parseAddress("asset", p.Asset); err != nil {
		return nil, err
	}
	if a.To, err = parseAddress("to", p.To); err != nil {
		return nil, err
	}
	if a.Nonce, err = parseUint("nonce", p.Nonce); err != nil {
		return nil, err
	}
	if a.OrderID, err = parseUint("order_id", p.OrderID); err != nil {
		return nil, err
	}
	if a.Duration, err = parseUint("duration", p.Duration); err != nil {
		return nil, err
	}
	if a.Amount, err = parseAmount("amount", p.Amount); err != nil {
		return nil, err
	}
	if a.Price, err = parseAmount("price", p.Price); err != nil {
		return nil, err
	}
	return a, nil
}

// ToEIP712 converts the action to the typed message that is signed.
func (a *Action) ToEIP712() *crypto.ActionEIP712 {
	return &crypto.ActionEIP712{
		Action:         string(a.Type),
		Signer:         a.Signer,
		Nonce:          a.Nonce,
		OrderID:        a.OrderID,
		Asset:          a.Asset,
		Amount:         toBig(a.Amount),
		Price:          toBig(a.Price),
		Duration:       a.Duration,
		UpdateDeadline: a.UpdateDeadline,
		To:             a.To,
		Symbol:         a.Symbol,
	}
}

// Payload renders a as its wire payload.
func (a *Action) Payload() ActionPayload {
	p := ActionPayload{
		Type:           a.Type,
		Signer:         a.Signer.Hex(),
		Nonce:          strconv.FormatUint(a.Nonce, 10),
		UpdateDeadline: a.UpdateDeadline,
		Symbol:         a.Symbol,
	}
	if a.OrderID != 0 {
		p.OrderID = strconv.FormatUint(a.OrderID, 10)
	}
	if a.Asset != (common.Address{}) {
		p.Asset = a.Asset.Hex()
	}
	if a.Amount != nil && !a.Amount.IsZero() {
		p.Amount = a.Amount.Dec()
	}
	if a.Price != nil && !a.Price.IsZero() {
		p.Price = a.Price.Dec()
	}
	if a.Duration != 0 {
		p.Duration = strconv.FormatUint(a.Duration, 10)
	}
	if a.To != (common.Address{}) {
		p.To = a.To.Hex()
	}
	return p
}

// Serialize converts SignedAction to JSON bytes
func (tx *SignedAction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Validate performs basic validation on the envelope structure. Ledger
// rules (amounts, durations, ownership) are checked when the action runs.
func (tx *SignedAction) Validate() error {
	if tx.Signature == "" {
		return invalidf("missing signature")
	}
	p := &tx.Action
	if p.Signer == "" {
		return invalidf("missing signer")
	}
	if p.Nonce == "" {
		return invalidf("missing nonce")
	}

	switch p.Type {
	case ActionCreate:
		if p.Asset == "" {
			return invalidf("create requires asset")
		}
	case ActionAmend, ActionCancel, ActionFulfill:
		if p.OrderID == "" {
			return invalidf("%s requires order_id", p.Type)
		}
	case ActionRegisterAsset:
		if p.Asset == "" || p.Symbol == "" {
			return invalidf("register_asset requires asset and symbol")
		}
	case ActionWithdrawFees:
		if p.Asset == "" {
			return invalidf("withdraw_fees requires asset")
		}
	case ActionApprove:
		if p.Asset == "" || p.Amount == "" {
			return invalidf("approve requires asset and amount")
		}
	case "":
		return invalidf("missing action type")
	default:
		return invalidf("unknown action type: %s", p.Type)
	}
	return nil
}

// Parse decodes and validates a JSON envelope.
func Parse(data []byte) (*SignedAction, error) {
	var tx SignedAction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, invalidf("unmarshal: %v", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidAction}, args...)...)
}

func parseAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseUint(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", field, s)
	}
	return v, nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %s", field, s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%s exceeds 256 bits: %s", field, s)
	}
	return v, nil
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
