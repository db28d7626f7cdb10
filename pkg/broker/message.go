// Package broker publishes ledger events to Kafka. Two clients are
// supported: segmentio/kafka-go and IBM/sarama.
package broker

import (
	"encoding/json"
	"strconv"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
)

// encode returns the Kafka key and value of ev. Events of one order share a
// key so they land on one partition in order.
func encode(ev *events.Event) (key, value []byte, err error) {
	value, err = json.Marshal(ev)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case ev.OrderID != 0:
		key = []byte("order:" + strconv.FormatUint(ev.OrderID, 10))
	case ev.Asset != "":
		key = []byte("asset:" + ev.Asset)
	default:
		key = []byte(ev.Type)
	}
	return key, value, nil
}
