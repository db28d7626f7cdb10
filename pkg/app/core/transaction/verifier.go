package transaction

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperescrow/pkg/crypto"
)

// ErrInvalidSignature is returned when the recovered signer differs from
// the payload's signer.
var ErrInvalidSignature = errors.New("signature invalid")

// ErrInvalidAction is returned for malformed envelopes: unparsable fields,
// missing fields, or a signature that is not 65 hex-encoded bytes.
var ErrInvalidAction = errors.New("invalid action")

// Verifier handles action signature verification
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

// NewVerifier creates a new action verifier
func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// Verify decodes tx and checks that its signature was made by the payload's
// signer. It returns the decoded action.
func (v *Verifier) Verify(tx *SignedAction) (*Action, error) {
	action, err := tx.Action.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	sigBytes, err := decodeSignature(tx.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	recovered, err := v.eip712Signer.RecoverActionSigner(action.ToEIP712(), sigBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if recovered != action.Signer {
		return nil, fmt.Errorf("%w: recovered %s, signer %s", ErrInvalidSignature, recovered.Hex(), action.Signer.Hex())
	}
	return action, nil
}

// Sign produces a signed envelope for action; clients and tests use it.
func (v *Verifier) Sign(signer *crypto.Signer, action *Action) (*SignedAction, error) {
	if action.Signer == (common.Address{}) {
		action.Signer = signer.Address()
	}
	sig, err := v.eip712Signer.SignAction(signer, action.ToEIP712())
	if err != nil {
		return nil, err
	}
	return &SignedAction{
		Action:    action.Payload(),
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// decodeSignature decodes hex-encoded signature (with or without 0x prefix)
func decodeSignature(sig string) ([]byte, error) {
	sig = strings.TrimPrefix(sig, "0x")

	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}

	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}

	return sigBytes, nil
}
