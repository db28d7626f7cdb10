package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/deployments
type EIP712Domain struct {
	Name              string         // Protocol name
	Version           string         // Protocol version
	ChainID           *big.Int       // Chain ID (1337 for local)
	VerifyingContract common.Address // Custody account of the ledger
}

// DefaultDomain returns the devnet domain for a ledger whose custody
// account is custody.
func DefaultDomain(chainID int64, custody common.Address) EIP712Domain {
	return EIP712Domain{
		Name:              "HyperEscrow",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: custody,
	}
}

// ActionEIP712 is the typed message a user signs to drive the ledger.
// Fields irrelevant to Action are zero.
type ActionEIP712 struct {
	Action         string         // create | amend | cancel | fulfill | register_asset | withdraw_fees | approve
	Signer         common.Address // Must match the recovered signer
	Nonce          uint64         // Strictly increasing per signer
	OrderID        uint64
	Asset          common.Address
	Amount         *big.Int
	Price          *big.Int
	Duration       uint64 // seconds
	UpdateDeadline bool
	To             common.Address
	Symbol         string
}

var actionTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"EscrowAction": []apitypes.Type{
		{Name: "action", Type: "string"},
		{Name: "signer", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "orderId", Type: "uint256"},
		{Name: "asset", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "price", Type: "uint256"},
		{Name: "duration", Type: "uint256"},
		{Name: "updateDeadline", Type: "bool"},
		{Name: "to", Type: "address"},
		{Name: "symbol", Type: "string"},
	},
}

// EIP712Signer hashes, signs and verifies escrow actions under one domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// TypedData builds the EIP-712 structure of an action, as wallets expect it
// for eth_signTypedData_v4.
func (e *EIP712Signer) TypedData(a *ActionEIP712) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       actionTypes,
		PrimaryType: "EscrowAction",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"action":         a.Action,
			"signer":         a.Signer.Hex(),
			"nonce":          fmt.Sprintf("%d", a.Nonce),
			"orderId":        fmt.Sprintf("%d", a.OrderID),
			"asset":          a.Asset.Hex(),
			"amount":         bigString(a.Amount),
			"price":          bigString(a.Price),
			"duration":       fmt.Sprintf("%d", a.Duration),
			"updateDeadline": a.UpdateDeadline,
			"to":             a.To.Hex(),
			"symbol":         a.Symbol,
		},
	}
}

// HashAction returns the EIP-712 digest of an action.
func (e *EIP712Signer) HashAction(a *ActionEIP712) ([]byte, error) {
	typedData := e.TypedData(a)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// SignAction signs a and returns the 65-byte signature.
func (e *EIP712Signer) SignAction(signer *Signer, a *ActionEIP712) ([]byte, error) {
	hash, err := e.HashAction(a)
	if err != nil {
		return nil, fmt.Errorf("failed to hash action: %w", err)
	}
	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign action: %w", err)
	}
	return signature, nil
}

// RecoverActionSigner returns the address that produced signature over a.
func (e *EIP712Signer) RecoverActionSigner(a *ActionEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashAction(a)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash action: %w", err)
	}
	return RecoverAddress(hash, signature)
}

// ActionToJSON renders the typed data for frontend/wallet signing.
func (e *EIP712Signer) ActionToJSON(a *ActionEIP712) (string, error) {
	jsonBytes, err := json.MarshalIndent(e.TypedData(a), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
