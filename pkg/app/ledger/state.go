package ledger

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/escrow"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/order"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/treasury"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

// StateHash computes a deterministic keccak256 digest of the ledger state.
//
// State components hashed (in key order, each entry length-prefixed):
//  1. Registered assets and the registration index
//  2. Custody counters
//  3. Accrued fees
//  4. Order records
//
// Bank balances, nonces and the event log are not part of the digest.
func (l *Ledger) StateHash(ctx context.Context) (hash common.Hash, err error) {
	err = l.view(ctx, func(rd storage.Reader) error {
		h := sha3.NewLegacyKeccak256()
		var lenBuf [4]byte
		write := func(b []byte) {
			binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
			h.Write(lenBuf[:])
			h.Write(b)
		}
		for _, prefix := range storage.StatePrefixes() {
			err := rd.Scan(prefix, nil, func(key, value []byte) error {
				write(key)
				write(value)
				return nil
			})
			if err != nil {
				return err
			}
		}
		copy(hash[:], h.Sum(nil))
		return nil
	})
	return hash, err
}

// CheckInvariants verifies, for every asset, that the custody counter
// equals the sum of active order amounts plus accrued fees, and that the
// bank actually holds at least that much in the custody account.
func (l *Ledger) CheckInvariants(ctx context.Context) (err error) {
	return l.view(ctx, func(rd storage.Reader) error {
		expected := make(map[common.Address]*uint256.Int)
		add := func(a common.Address, amt *uint256.Int) {
			cur, ok := expected[a]
			if !ok {
				cur = new(uint256.Int)
				expected[a] = cur
			}
			cur.Add(cur, amt)
		}

		err := order.ForEach(rd, func(o *order.Order) error {
			if o.Active {
				if o.Amount.IsZero() || o.Price.IsZero() {
					return fmt.Errorf("active order %d has zero amount or price", o.ID)
				}
				add(o.Asset, o.Amount)
			}
			return nil
		})
		if err != nil {
			return err
		}
		fees, err := treasury.All(rd)
		if err != nil {
			return err
		}
		for _, f := range fees {
			add(f.Asset, f.Amount)
		}

		holdings, err := escrow.Holdings(rd)
		if err != nil {
			return err
		}
		held := make(map[common.Address]*uint256.Int, len(holdings))
		for _, h := range holdings {
			held[h.Asset] = h.Amount
		}

		bank := l.escrow.Begin(readOnly{rd})
		for a, want := range expected {
			got, ok := held[a]
			if !ok {
				got = new(uint256.Int)
			}
			if !got.Eq(want) {
				return fmt.Errorf("custody of %s is %s, orders and fees account for %s", a.Hex(), got.Dec(), want.Dec())
			}
			delete(held, a)

			bal, err := bank.BalanceOf(a, l.escrow.Custody())
			if err != nil {
				return err
			}
			if bal.Lt(want) {
				return fmt.Errorf("custody account holds %s of %s, owes %s", bal.Dec(), a.Hex(), want.Dec())
			}
		}
		for a, got := range held {
			if !got.IsZero() {
				return fmt.Errorf("custody of %s is %s with no orders or fees", a.Hex(), got.Dec())
			}
		}
		return nil
	})
}

// readOnly lets a committed-state reader open a bank session for balance
// reads. Writes fail.
type readOnly struct{ storage.Reader }

func (readOnly) Set(key, _ []byte) error {
	return fmt.Errorf("read-only view: set %q", key)
}

func (readOnly) Delete(key []byte) error {
	return fmt.Errorf("read-only view: delete %q", key)
}
