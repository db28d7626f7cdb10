package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

func TestAppendAndRange(t *testing.T) {
	s, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	seller := common.HexToAddress("0x0000000000000000000000000000000000005e11")
	err = s.Update(func(tx *storage.Batch) error {
		for i := uint64(1); i <= 5; i++ {
			if err := Append(tx, NewOrderCancelled(100, i, seller, uint256.NewInt(i))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	last, _ := LastSeq(s)
	if last != 5 {
		t.Fatalf("LastSeq = %d, want 5", last)
	}

	tests := []struct {
		from    uint64
		limit   int
		wantLen int
		first   uint64
	}{
		{0, 0, 5, 1},
		{1, 2, 2, 1},
		{4, 10, 2, 4},
		{6, 10, 0, 0},
	}
	for _, tt := range tests {
		evs, err := Range(s, tt.from, tt.limit)
		if err != nil {
			t.Fatalf("Range(%d, %d): %v", tt.from, tt.limit, err)
		}
		if len(evs) != tt.wantLen {
			t.Errorf("Range(%d, %d) returned %d events, want %d", tt.from, tt.limit, len(evs), tt.wantLen)
			continue
		}
		if tt.wantLen > 0 && evs[0].Seq != tt.first {
			t.Errorf("Range(%d, %d) first seq = %d, want %d", tt.from, tt.limit, evs[0].Seq, tt.first)
		}
	}
}

func TestBus(t *testing.T) {
	b := NewBus()
	var got []uint64
	cancel := b.Subscribe(func(ev *Event) { got = append(got, ev.Seq) })

	b.Publish(&Event{Seq: 1}, &Event{Seq: 2})
	cancel()
	b.Publish(&Event{Seq: 3})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("subscriber saw %v, want [1 2]", got)
	}
}

func TestChannels(t *testing.T) {
	ev := &Event{Type: OrderFulfilled, OrderID: 7, Seller: "0xS", Buyer: "0xB"}
	want := map[string]bool{"orders": true, "order:7": true, "fees": true, "account:0xS": true, "account:0xB": true}
	for _, ch := range ev.Channels() {
		if !want[ch] {
			t.Errorf("unexpected channel %q", ch)
		}
		delete(want, ch)
	}
	if len(want) != 0 {
		t.Errorf("missing channels: %v", want)
	}
}
