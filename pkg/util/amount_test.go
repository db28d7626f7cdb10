package util

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
)

func TestParseFormatAmount(t *testing.T) {
	tests := []struct {
		in      string
		base    string
		wantErr bool
	}{
		{"1", "1000000000000000000", false},
		{"0.5", "500000000000000000", false},
		{"0.02", "20000000000000000", false},
		{"4.5", "4500000000000000000", false},
		{"0.0000000000000000001", "", true},
		{"-1", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in, 18)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q) = %s, want error", tt.in, got.Dec())
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", tt.in, err)
		}
		if got.Dec() != tt.base {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got.Dec(), tt.base)
		}
		if back := FormatAmount(got, 18); back != tt.in {
			t.Errorf("FormatAmount(%s) = %q, want %q", got.Dec(), back, tt.in)
		}
	}
	if FormatAmount(uint256.NewInt(2000), 0) != "2000" {
		t.Errorf("FormatAmount with 0 decimals")
	}
}

func TestManualClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewManualClock(start)
	if UnixSeconds(c) != 1_700_000_000 {
		t.Fatalf("UnixSeconds = %d", UnixSeconds(c))
	}
	c.Advance(41 * time.Second)
	c.Advance(-time.Hour)
	if UnixSeconds(c) != 1_700_000_041 {
		t.Errorf("after Advance: %d", UnixSeconds(c))
	}
}
