package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger key schema for Pebble storage.
//
// Integer components are zero-padded to 20 digits so lexicographic order
// matches numeric order:
//
//	meta:<name>                        → ledger metadata (admin, counters)
//	asset:<address>                    → registered asset (symbol, index)
//	assetidx:<index>                   → asset address at registration index
//	ord:<id>                           → order record
//	sord:<seller>:<id>                 → seller → order index (empty value)
//	fee:<asset>                        → accrued protocol fee
//	cust:<asset>                       → total units held in custody
//	bal:<holder>:<asset>               → bank balance
//	allow:<owner>:<spender>:<asset>    → bank allowance
//	nonce:<address>                    → last consumed signed-request nonce
//	evt:<seq>                          → event log entry
//	relay:<name>                       → relay cursor (last published seq)
const (
	prefixMeta        = "meta:"
	prefixAsset       = "asset:"
	prefixAssetIndex  = "assetidx:"
	prefixOrder       = "ord:"
	prefixSellerOrder = "sord:"
	prefixFee         = "fee:"
	prefixCustody     = "cust:"
	prefixBalance     = "bal:"
	prefixAllowance   = "allow:"
	prefixNonce       = "nonce:"
	prefixEvent       = "evt:"
	prefixRelay       = "relay:"
)

func MetaKey(name string) []byte {
	return []byte(prefixMeta + name)
}

// AssetKey format: "asset:{address}"
func AssetKey(asset common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAsset, asset.Hex()))
}

// AssetIndexKey format: "assetidx:{index}"
func AssetIndexKey(i uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixAssetIndex, i))
}

func AssetIndexPrefix() []byte { return []byte(prefixAssetIndex) }

// OrderKey format: "ord:{id}"
func OrderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func OrderPrefix() []byte { return []byte(prefixOrder) }

// SellerOrderKey format: "sord:{seller}:{id}"
func SellerOrderKey(seller common.Address, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixSellerOrder, seller.Hex(), id))
}

// SellerOrderPrefix returns the prefix of every order index entry for seller.
func SellerOrderPrefix(seller common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixSellerOrder, seller.Hex()))
}

// ParseSellerOrderKey extracts the order id from a seller index key.
func ParseSellerOrderKey(key []byte) (uint64, error) {
	// "sord:" + 42-char address + ":" + 20 digits
	const idOffset = len(prefixSellerOrder) + 42 + 1
	if len(key) != idOffset+20 {
		return 0, fmt.Errorf("invalid seller order key length: %d", len(key))
	}
	var id uint64
	if _, err := fmt.Sscanf(string(key[idOffset:]), "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid seller order key %q: %w", key, err)
	}
	return id, nil
}

// FeeKey format: "fee:{asset}"
func FeeKey(asset common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixFee, asset.Hex()))
}

func FeePrefix() []byte { return []byte(prefixFee) }

// CustodyKey format: "cust:{asset}"
func CustodyKey(asset common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixCustody, asset.Hex()))
}

func CustodyPrefix() []byte { return []byte(prefixCustody) }

// BalanceKey format: "bal:{holder}:{asset}"
func BalanceKey(holder, asset common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, holder.Hex(), asset.Hex()))
}

// BalancePrefix returns the prefix of every balance held by holder.
func BalancePrefix(holder common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixBalance, holder.Hex()))
}

// AllowanceKey format: "allow:{owner}:{spender}:{asset}"
func AllowanceKey(owner, spender, asset common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixAllowance, owner.Hex(), spender.Hex(), asset.Hex()))
}

// NonceKey format: "nonce:{address}"
func NonceKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixNonce, addr.Hex()))
}

// EventKey format: "evt:{seq}"
func EventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEvent, seq))
}

func EventPrefix() []byte { return []byte(prefixEvent) }

// RelayCursorKey format: "relay:{name}"
func RelayCursorKey(name string) []byte {
	return []byte(prefixRelay + name)
}

// StatePrefixes lists the keyspaces that make up ledger state (excluding
// the event log, bank nonces and relay cursors), in digest order.
func StatePrefixes() [][]byte {
	return [][]byte{
		[]byte(prefixAsset),
		[]byte(prefixAssetIndex),
		[]byte(prefixCustody),
		[]byte(prefixFee),
		[]byte(prefixOrder),
	}
}

// AddressFromKeySuffix parses the trailing 42-char hex address of key.
func AddressFromKeySuffix(key []byte) (common.Address, error) {
	if len(key) < 42 {
		return common.Address{}, fmt.Errorf("invalid key length: %d", len(key))
	}
	addrHex := string(key[len(key)-42:])
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, fmt.Errorf("invalid address in key: %s", addrHex)
	}
	return common.HexToAddress(addrHex), nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "ord:" -> upper bound "ord;" (next byte after ':')
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
