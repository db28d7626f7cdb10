package account

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

var (
	custody = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	token   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func newBank(t *testing.T) (*Bank, *storage.PebbleStore) {
	t.Helper()
	s, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewBank(s, custody), s
}

func TestTransferInConsumesAllowance(t *testing.T) {
	b, s := newBank(t)
	if err := b.Mint(token, alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	err := s.Update(func(tx *storage.Batch) error {
		return b.Begin(tx).TransferIn(token, alice, custody, uint256.NewInt(10))
	})
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	if err := b.Approve(alice, custody, token, uint256.NewInt(30)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	err = s.Update(func(tx *storage.Batch) error {
		return b.Begin(tx).TransferIn(token, alice, bob, uint256.NewInt(25))
	})
	if err != nil {
		t.Fatalf("transfer in: %v", err)
	}

	tests := []struct {
		name string
		got  func() (*uint256.Int, error)
		want uint64
	}{
		{"alice balance", func() (*uint256.Int, error) { return b.Balance(token, alice) }, 75},
		{"bob balance", func() (*uint256.Int, error) { return b.Balance(token, bob) }, 25},
		{"remaining allowance", func() (*uint256.Int, error) { return b.Allowance(alice, custody, token) }, 5},
	}
	for _, tt := range tests {
		got, err := tt.got()
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got.Uint64() != tt.want {
			t.Errorf("%s = %s, want %d", tt.name, got.Dec(), tt.want)
		}
	}
}

func TestTransferOutRequiresCustodyBalance(t *testing.T) {
	b, s := newBank(t)

	err := s.Update(func(tx *storage.Batch) error {
		return b.Begin(tx).TransferOut(token, alice, uint256.NewInt(1))
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if err := b.Mint(token, custody, uint256.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := s.Update(func(tx *storage.Batch) error {
		return b.Begin(tx).TransferOut(token, alice, uint256.NewInt(5))
	}); err != nil {
		t.Fatalf("transfer out: %v", err)
	}

	acc, err := b.Account(alice)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if got := acc.BalanceOf(token); got.Uint64() != 5 {
		t.Errorf("alice balance = %s, want 5", got.Dec())
	}
}

func TestFailedBatchDiscardsTransfers(t *testing.T) {
	b, s := newBank(t)
	if err := b.Mint(token, custody, uint256.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	boom := errors.New("boom")
	err := s.Update(func(tx *storage.Batch) error {
		if err := b.Begin(tx).TransferOut(token, alice, uint256.NewInt(10)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	bal, _ := b.Balance(token, custody)
	if bal.Uint64() != 10 {
		t.Errorf("custody balance = %s after rollback, want 10", bal.Dec())
	}
}

func TestUseNonce(t *testing.T) {
	b, _ := newBank(t)

	tests := []struct {
		nonce   uint64
		wantErr bool
	}{
		{0, true},
		{1, false},
		{1, true},
		{5, false},
		{3, true},
		{6, false},
	}
	for _, tt := range tests {
		err := b.UseNonce(alice, tt.nonce)
		if tt.wantErr && !errors.Is(err, ErrStaleNonce) {
			t.Errorf("UseNonce(%d): expected ErrStaleNonce, got %v", tt.nonce, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("UseNonce(%d): %v", tt.nonce, err)
		}
	}
	if n, _ := b.Nonce(alice); n != 6 {
		t.Errorf("Nonce = %d, want 6", n)
	}
}
