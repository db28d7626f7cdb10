package p2p

import (
	"bytes"
	"encoding/gob"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
)

func init() {
	gob.Register(BatchWire{})
}

// BatchWire is one gossiped batch of ledger events.
type BatchWire struct {
	Origin string // peer ID of the publishing node
	Events []events.Event
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
