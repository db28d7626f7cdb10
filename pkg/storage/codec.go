package storage

import (
	"encoding/binary"
	"encoding/json"

	"github.com/holiman/uint256"
)

// GetUint64 reads a big-endian counter; a missing key reads as 0.
func GetUint64(r Reader, key []byte) (uint64, error) {
	val, ok, err := r.Get(key)
	if err != nil || !ok {
		return 0, err
	}
	if len(val) != 8 {
		return 0, Error.New("counter %q: invalid length %d", key, len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

func PutUint64(w Writer, key []byte, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return w.Set(key, buf[:])
}

// GetAmount reads a decimal-encoded 256-bit amount; a missing key reads as 0.
func GetAmount(r Reader, key []byte) (*uint256.Int, error) {
	val, ok, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	amt, err := uint256.FromDecimal(string(val))
	if err != nil {
		return nil, Error.New("amount %q: %v", key, err)
	}
	return amt, nil
}

// PutAmount stores amt in decimal; zero amounts are deleted to keep scans short.
func PutAmount(w Writer, key []byte, amt *uint256.Int) error {
	if amt.IsZero() {
		return w.Delete(key)
	}
	return w.Set(key, []byte(amt.Dec()))
}

// GetJSON decodes the value at key into v. ok is false if the key is absent.
func GetJSON(r Reader, key []byte, v any) (bool, error) {
	val, ok, err := r.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := GetJSONValue(key, val, v); err != nil {
		return false, err
	}
	return true, nil
}

// GetJSONValue decodes a raw value read at key (e.g. during a Scan).
func GetJSONValue(key, val []byte, v any) error {
	if err := json.Unmarshal(val, v); err != nil {
		return Error.New("failed to unmarshal %q: %v", key, err)
	}
	return nil
}

func PutJSON(w Writer, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return Error.New("failed to marshal %q: %v", key, err)
	}
	return w.Set(key, data)
}
