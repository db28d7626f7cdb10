package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}

	// 32 bytes
	if privHex := signer.PrivateKeyHex(); len(privHex) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(privHex))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex} {
		signer2, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("failed to load key %q: %v", in, err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
		}
	}
}

func TestSignAndRecover(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256Hash([]byte("hyperescrow")).Bytes()

	signature, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(signature) != 65 {
		t.Errorf("signature length = %d, want 65", len(signature))
	}

	recovered, err := RecoverAddress(hash, signature)
	if err != nil {
		t.Fatalf("failed to recover address: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered address = %s, want %s", recovered.Hex(), signer.Address().Hex())
	}

	// Wallets send V as 27/28.
	walletSig := append([]byte(nil), signature...)
	walletSig[64] += 27
	if !VerifySignature(signer.Address(), hash, walletSig) {
		t.Error("signature with V+27 should verify")
	}

	wrongAddr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	if VerifySignature(wrongAddr, hash, signature) {
		t.Error("signature should not verify with wrong address")
	}
}

func TestInvalidSignature(t *testing.T) {
	signer, _ := GenerateKey()
	hash := common.BytesToHash([]byte("test")).Bytes()

	if VerifySignature(signer.Address(), hash, []byte{1, 2, 3}) {
		t.Error("invalid signature should not verify")
	}
	if VerifySignature(signer.Address(), []byte("short"), make([]byte, 65)) {
		t.Error("invalid hash should not verify")
	}
}

func TestSignAction(t *testing.T) {
	signer, _ := GenerateKey()
	custody := common.HexToAddress("0x000000000000000000000000000000000000c0de")
	e := NewEIP712Signer(DefaultDomain(1337, custody))

	action := &ActionEIP712{
		Action:   "create",
		Signer:   signer.Address(),
		Nonce:    1,
		Asset:    common.HexToAddress("0x00000000000000000000000000000000000000e1"),
		Amount:   big.NewInt(1_000_000),
		Price:    big.NewInt(2000),
		Duration: 40,
	}

	sig, err := e.SignAction(signer, action)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := e.RecoverActionSigner(action, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got != signer.Address() {
		t.Errorf("recovered %s, want %s", got.Hex(), signer.Address().Hex())
	}

	tests := []struct {
		name   string
		mutate func(a *ActionEIP712)
	}{
		{"different price", func(a *ActionEIP712) { a.Price = big.NewInt(2001) }},
		{"different nonce", func(a *ActionEIP712) { a.Nonce = 2 }},
		{"deadline flag", func(a *ActionEIP712) { a.UpdateDeadline = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := *action
			tt.mutate(&tampered)
			got, err := e.RecoverActionSigner(&tampered, sig)
			if err == nil && got == signer.Address() {
				t.Error("tampered action still recovers the signer")
			}
		})
	}

	// Another chain's domain yields a different digest.
	other := NewEIP712Signer(DefaultDomain(1, custody))
	h1, _ := e.HashAction(action)
	h2, _ := other.HashAction(action)
	if common.BytesToHash(h1) == common.BytesToHash(h2) {
		t.Error("digest does not depend on chain id")
	}

	if _, err := e.ActionToJSON(action); err != nil {
		t.Errorf("ActionToJSON: %v", err)
	}
}
