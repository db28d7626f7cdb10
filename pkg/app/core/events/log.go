package events

import (
	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

var nextSeqKey = storage.MetaKey("nextevent")

// Append assigns ev the next sequence number (first is 1) and writes it in
// tx, so the event commits or vanishes with the state change it describes.
func Append(tx storage.ReadWriter, ev *Event) error {
	seq, err := storage.GetUint64(tx, nextSeqKey)
	if err != nil {
		return err
	}
	if seq == 0 {
		seq = 1
	}
	ev.Seq = seq
	if err := storage.PutJSON(tx, storage.EventKey(seq), ev); err != nil {
		return err
	}
	return storage.PutUint64(tx, nextSeqKey, seq+1)
}

// LastSeq returns the sequence number of the newest event (0 if none).
func LastSeq(rd storage.Reader) (uint64, error) {
	next, err := storage.GetUint64(rd, nextSeqKey)
	if err != nil || next == 0 {
		return 0, err
	}
	return next - 1, nil
}

// Range returns up to limit events with Seq >= from, oldest first.
func Range(rd storage.Reader, from uint64, limit int) ([]*Event, error) {
	if from == 0 {
		from = 1
	}
	out := make([]*Event, 0)
	err := rd.Scan(storage.EventPrefix(), storage.EventKey(from), func(key, value []byte) error {
		if limit > 0 && len(out) >= limit {
			return storage.ErrStopScan
		}
		var ev Event
		if err := storage.GetJSONValue(key, value, &ev); err != nil {
			return err
		}
		out = append(out, &ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
