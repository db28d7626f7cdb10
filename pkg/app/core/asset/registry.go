// Package asset is the whitelist of tradable assets.
//
// Entries are never removed. Each registered asset also gets a zero-based
// position in registration order, used for enumeration.
package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/errcode"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

// Asset is a registered, tradable asset.
type Asset struct {
	ID     common.Address `json:"id"`
	Symbol string         `json:"symbol"`
	Index  uint64         `json:"index"`
}

var countKey = storage.MetaKey("assetcount")

// Registry reads and writes the whitelist through the caller's storage
// handle, so registration shares the atomic batch of the operation.
type Registry struct{}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register whitelists id with a symbol and appends it to the ordered list.
// Authorization is the caller's concern.
// Returns InvalidAsset if id is the zero address or already registered.
func (r *Registry) Register(tx storage.ReadWriter, id common.Address, symbol string) (*Asset, error) {
	if id == (common.Address{}) {
		return nil, errcode.New(errcode.InvalidAsset, "zero asset address")
	}
	existing, err := r.Get(tx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errcode.New(errcode.InvalidAsset, "asset %s already registered as %q", id.Hex(), existing.Symbol)
	}

	count, err := r.Count(tx)
	if err != nil {
		return nil, err
	}
	a := &Asset{ID: id, Symbol: symbol, Index: count}
	if err := storage.PutJSON(tx, storage.AssetKey(id), a); err != nil {
		return nil, err
	}
	if err := tx.Set(storage.AssetIndexKey(count), id.Bytes()); err != nil {
		return nil, err
	}
	if err := storage.PutUint64(tx, countKey, count+1); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns the asset, or nil if it is not registered.
func (r *Registry) Get(rd storage.Reader, id common.Address) (*Asset, error) {
	var a Asset
	ok, err := storage.GetJSON(rd, storage.AssetKey(id), &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

// IsAllowed reports whether id is whitelisted.
func (r *Registry) IsAllowed(rd storage.Reader, id common.Address) (bool, error) {
	_, ok, err := rd.Get(storage.AssetKey(id))
	return ok, err
}

// Symbol returns the symbol of a registered asset, or "" if unknown.
func (r *Registry) Symbol(rd storage.Reader, id common.Address) (string, error) {
	a, err := r.Get(rd, id)
	if err != nil || a == nil {
		return "", err
	}
	return a.Symbol, nil
}

// ByIndex returns the i-th registered asset (zero-based, registration order).
// Returns InvalidIndex if i >= Count.
func (r *Registry) ByIndex(rd storage.Reader, i uint64) (*Asset, error) {
	count, err := r.Count(rd)
	if err != nil {
		return nil, err
	}
	if i >= count {
		return nil, errcode.New(errcode.InvalidIndex, "index %d out of range (%d assets)", i, count)
	}
	raw, ok, err := rd.Get(storage.AssetIndexKey(i))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("asset index %d missing below count %d", i, count)
	}
	a, err := r.Get(rd, common.BytesToAddress(raw))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("asset index %d points at unregistered %x", i, raw)
	}
	return a, nil
}

// Count returns the number of registered assets.
func (r *Registry) Count(rd storage.Reader) (uint64, error) {
	return storage.GetUint64(rd, countKey)
}

// List returns every registered asset in registration order.
func (r *Registry) List(rd storage.Reader) ([]*Asset, error) {
	var out []*Asset
	err := rd.Scan(storage.AssetIndexPrefix(), nil, func(_, value []byte) error {
		a, err := r.Get(rd, common.BytesToAddress(value))
		if err != nil {
			return err
		}
		if a != nil {
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
