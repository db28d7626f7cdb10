package order

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/errcode"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

var (
	seller = common.HexToAddress("0x0000000000000000000000000000000000005e11")
	weth   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func TestStatus(t *testing.T) {
	o := &Order{ID: 1, Expiry: 100, Active: true}
	tests := []struct {
		now    uint64
		active bool
		want   Status
	}{
		{50, true, StatusActive},
		{100, true, StatusActive},
		{101, true, StatusExpiredPendingSweep},
		{50, false, StatusInactive},
		{101, false, StatusInactive},
	}
	for _, tt := range tests {
		o.Active = tt.active
		if got := o.Status(tt.now); got != tt.want {
			t.Errorf("Status(now=%d, active=%v) = %q, want %q", tt.now, tt.active, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	one := uint256.NewInt(1)
	zero := new(uint256.Int)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"ok terms", ValidateTerms(one, one), nil},
		{"zero amount", ValidateTerms(zero, one), errcode.ErrInvalidAmount},
		{"zero price", ValidateTerms(one, zero), errcode.ErrInvalidPrice},
		{"zero amount wins over zero price", ValidateTerms(zero, zero), errcode.ErrInvalidAmount},
		{"ok duration", ValidateDuration(60, 60), nil},
		{"zero duration", ValidateDuration(0, 60), errcode.ErrInvalidDeadline},
		{"too long", ValidateDuration(61, 60), errcode.ErrInvalidDeadline},
	}
	for _, tt := range tests {
		if tt.want == nil && tt.err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, tt.err)
		}
		if tt.want != nil && !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, tt.err, tt.want)
		}
	}
}

func TestSaveLoadAndIndex(t *testing.T) {
	s, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	big, _ := uint256.FromDecimal("5000000000000000000")
	err = s.Update(func(tx *storage.Batch) error {
		for i := 0; i < 3; i++ {
			id, err := AllocateID(tx)
			if err != nil {
				return err
			}
			o := &Order{ID: id, Seller: seller, Asset: weth, Amount: big, Price: uint256.NewInt(9000), Expiry: 45, Active: true}
			if err := Save(tx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	next, _ := NextID(s)
	if next != 4 {
		t.Errorf("NextID = %d, want 4", next)
	}

	o, err := Load(s, 2)
	if err != nil || o == nil {
		t.Fatalf("Load(2) = %v, %v", o, err)
	}
	if o.Amount.Cmp(big) != 0 || o.Seller != seller || !o.Active {
		t.Errorf("Load(2) = %+v", o)
	}

	if _, err := MustLoad(s, 99); !errors.Is(err, errcode.ErrInvalidOrder) {
		t.Errorf("MustLoad(99): expected InvalidOrder, got %v", err)
	}

	orders, err := BySeller(s, seller)
	if err != nil {
		t.Fatalf("BySeller: %v", err)
	}
	if len(orders) != 3 || orders[0].ID != 1 || orders[2].ID != 3 {
		t.Errorf("BySeller returned %d orders", len(orders))
	}

	var seen int
	if err := ForEach(s, func(*Order) error { seen++; return nil }); err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if seen != 3 {
		t.Errorf("ForEach visited %d orders, want 3", seen)
	}
}
