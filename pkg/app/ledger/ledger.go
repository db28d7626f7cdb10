// Package ledger is the escrow order engine: it drives the asset registry,
// order store, fee treasury and escrow transfers through one atomic storage
// batch per operation.
//
// Every operation follows the same order: checks, then effects (order, fee
// and event writes), then interactions (bank transfers). All of it is staged
// in one batch; any failure discards the batch, so a rejected operation has
// no effect at all.
package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperescrow/params"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/access"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/asset"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/escrow"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/treasury"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
	"github.com/uhyunpark/hyperescrow/pkg/util"
)

var (
	mon = monkit.Package()

	// Error is the class of ledger infrastructure failures (as opposed to
	// coded rejections from errcode).
	Error = errs.Class("ledger")
)

var adminKey = storage.MetaKey("admin")

// Ledger serializes all operations: one at a time, each in its own batch,
// with committed events published to the bus in commit order.
type Ledger struct {
	mu sync.Mutex

	log   *zap.SugaredLogger
	store *storage.PebbleStore
	clock util.Clock
	bus   *events.Bus

	gate     *access.Gate
	assets   *asset.Registry
	escrow   *escrow.Ledger
	ref      common.Address
	rate     treasury.FeeRate
	maxDur   uint64
	decimals int32
}

// CustodyOf resolves the custody account of cfg.
func CustodyOf(cfg params.Ledger) common.Address {
	if cfg.Custody == (common.Address{}) {
		return escrow.DefaultCustody
	}
	return cfg.Custody
}

// New opens the ledger on store. On an empty store it records the admin and
// registers cfg.GenesisAssets; on an existing one the configured admin must
// match the recorded one.
func New(cfg params.Ledger, store *storage.PebbleStore, bank escrow.Bank, clock util.Clock, logger *zap.Logger) (*Ledger, error) {
	rate := treasury.FeeRate{Numerator: cfg.FeeNumerator, Precision: cfg.FeePrecision}
	if err := rate.Validate(); err != nil {
		return nil, Error.Wrap(err)
	}
	if cfg.Admin == (common.Address{}) {
		return nil, Error.New("admin address must be set")
	}
	if cfg.MaxOrderDuration == 0 {
		return nil, Error.New("max order duration must be positive")
	}

	l := &Ledger{
		log:      logger.Sugar(),
		store:    store,
		clock:    clock,
		bus:      events.NewBus(),
		gate:     access.NewGate(cfg.Admin),
		assets:   asset.NewRegistry(),
		escrow:   escrow.New(CustodyOf(cfg), bank),
		ref:      cfg.ReferenceAsset,
		rate:     rate,
		maxDur:   cfg.MaxOrderDuration,
		decimals: cfg.AmountDecimals,
	}
	if err := l.genesis(cfg); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) genesis(cfg params.Ledger) error {
	raw, ok, err := l.store.Get(adminKey)
	if err != nil {
		return Error.Wrap(err)
	}
	if ok {
		stored := common.BytesToAddress(raw)
		if stored != cfg.Admin {
			return Error.New("store belongs to admin %s, configured admin is %s", stored.Hex(), cfg.Admin.Hex())
		}
		return nil
	}

	err = l.apply(func(o *op) error {
		if err := o.tx.Set(adminKey, cfg.Admin.Bytes()); err != nil {
			return err
		}
		for _, ga := range cfg.GenesisAssets {
			a, err := l.assets.Register(o.tx, ga.Address, ga.Symbol)
			if err != nil {
				return Error.New("genesis asset %s: %v", ga.Symbol, err)
			}
			if err := o.emit(events.NewAssetAllowed(o.now, a.ID, a.Symbol, a.Index)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.log.Infow("ledger_genesis",
		"admin", cfg.Admin.Hex(),
		"custody", l.escrow.Custody().Hex(),
		"assets", len(cfg.GenesisAssets),
	)
	return nil
}

// Bus returns the bus committed events are published on.
func (l *Ledger) Bus() *events.Bus { return l.bus }

// op is the state of one running operation.
type op struct {
	tx     *storage.Batch
	now    uint64
	escrow *escrow.Session
	events []*events.Event
}

// emit appends ev to the event log in the operation's batch.
func (o *op) emit(ev *events.Event) error {
	if err := events.Append(o.tx, ev); err != nil {
		return err
	}
	o.events = append(o.events, ev)
	return nil
}

// apply runs fn as one atomic operation and publishes its events after
// commit.
func (l *Ledger) apply(fn func(o *op) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := util.UnixSeconds(l.clock)
	var committed []*events.Event
	err := l.store.Update(func(tx *storage.Batch) error {
		o := &op{tx: tx, now: now, escrow: l.escrow.Begin(tx)}
		if err := fn(o); err != nil {
			return err
		}
		committed = o.events
		return nil
	})
	if err != nil {
		return err
	}

	for _, ev := range committed {
		mon.Meter("event_" + string(ev.Type)).Mark(1)
	}
	l.bus.Publish(committed...)
	return nil
}

// view runs fn against committed state while no operation is in flight.
func (l *Ledger) view(ctx context.Context, fn func(rd storage.Reader) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.store)
}
