// Package relay forwards the ledger's committed event log to an external
// sink. Delivery is at-least-once: the cursor only advances after the sink
// accepted a batch, so a crash replays at most the last batch.
package relay

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

var (
	mon = monkit.Package()

	// Error is the class of relay failures.
	Error = errs.Class("relay")
)

// Publisher delivers a batch of events, in order, to a sink.
type Publisher interface {
	Publish(ctx context.Context, batch []*events.Event) error
	Close() error
}

// Source reads the event log.
type Source interface {
	Events(ctx context.Context, from uint64, limit int) ([]*events.Event, error)
}

// Config tunes the relay loop.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

// Relay polls Source and publishes new events to a Publisher.
type Relay struct {
	name  string
	src   Source
	store *storage.PebbleStore
	pub   Publisher
	cfg   Config
	log   *zap.SugaredLogger
}

// New creates a relay whose cursor is persisted in store under name.
func New(name string, src Source, store *storage.PebbleStore, pub Publisher, cfg Config, logger *zap.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	return &Relay{
		name:  name,
		src:   src,
		store: store,
		pub:   pub,
		cfg:   cfg,
		log:   logger.Sugar().With("relay", name),
	}
}

// Run flushes every interval until ctx is done, then closes the publisher.
// Publish failures are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) (err error) {
	defer func() { err = errs.Combine(err, r.pub.Close()) }()

	r.log.Infow("relay_started", "interval", r.cfg.Interval, "batch", r.cfg.BatchSize)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Infow("relay_stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.log.Warnw("relay_flush_failed", "error", err)
			}
		}
	}
}

// Flush publishes every event after the cursor and returns how many were
// delivered.
func (r *Relay) Flush(ctx context.Context) (n int, err error) {
	defer mon.Task()(&ctx)(&err)

	cursor, err := r.Cursor()
	if err != nil {
		return 0, err
	}
	for {
		batch, err := r.src.Events(ctx, cursor+1, r.cfg.BatchSize)
		if err != nil {
			return n, Error.Wrap(err)
		}
		if len(batch) == 0 {
			return n, nil
		}
		if err := r.pub.Publish(ctx, batch); err != nil {
			return n, Error.Wrap(err)
		}

		cursor = batch[len(batch)-1].Seq
		if err := r.store.Update(func(tx *storage.Batch) error {
			return storage.PutUint64(tx, storage.RelayCursorKey(r.name), cursor)
		}); err != nil {
			return n, Error.Wrap(err)
		}
		n += len(batch)
		mon.Counter("relay_events_published").Inc(int64(len(batch)))
		r.log.Debugw("relay_published", "count", len(batch), "cursor", cursor)

		if len(batch) < r.cfg.BatchSize {
			return n, nil
		}
	}
}

// Cursor returns the sequence number of the last delivered event.
func (r *Relay) Cursor() (uint64, error) {
	seq, err := storage.GetUint64(r.store, storage.RelayCursorKey(r.name))
	return seq, Error.Wrap(err)
}
