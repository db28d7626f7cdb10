// Package p2p gossips committed ledger events to peers over libp2p
// gossipsub.
package p2p

import (
	"context"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
)

// Error is the class of p2p failures.
var Error = errs.Class("p2p")

// Handler receives batches gossiped by other nodes.
type Handler func(ctx context.Context, from peer.ID, batch []*events.Event)

type Libp2pNet struct {
	h     host.Host
	ps    *pubsub.PubSub
	log   *zap.SugaredLogger
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	stop  context.CancelFunc
	wg    sync.WaitGroup

	muH     sync.RWMutex
	handler Handler
}

type Libp2pConfig struct {
	ListenAddr string
	Bootstrap  []string
	Topic      string
	Logger     *zap.Logger
}

func NewLibp2pNet(ctx context.Context, cfg Libp2pConfig) (_ *Libp2pNet, err error) {
	log := cfg.Logger.Sugar()

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, h.Close())
		}
	}()

	runCtx, stop := context.WithCancel(context.Background())
	ps, err := pubsub.NewGossipSub(runCtx, h)
	if err != nil {
		stop()
		return nil, Error.Wrap(err)
	}

	net := &Libp2pNet{h: h, ps: ps, log: log, stop: stop}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if net.topic, err = ps.Join(cfg.Topic); err != nil {
		stop()
		return nil, Error.Wrap(err)
	}
	if net.sub, err = net.topic.Subscribe(); err != nil {
		stop()
		return nil, Error.Wrap(err)
	}

	net.wg.Add(1)
	go net.handleBatches(runCtx)

	log.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", cfg.Topic)
	return net, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *Libp2pNet) SetHandler(h Handler) { n.muH.Lock(); n.handler = h; n.muH.Unlock() }

func (n *Libp2pNet) Host() host.Host { return n.h }

// Publish gossips batch on the topic. It implements relay.Publisher.
func (n *Libp2pNet) Publish(ctx context.Context, batch []*events.Event) error {
	w := BatchWire{Origin: n.h.ID().String(), Events: make([]events.Event, len(batch))}
	for i, ev := range batch {
		w.Events[i] = *ev
	}
	data, err := gobEncode(w)
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(n.topic.Publish(ctx, data))
}

// Close cancels the subscription and shuts the host down.
func (n *Libp2pNet) Close() error {
	n.sub.Cancel()
	n.stop()
	n.wg.Wait()
	return Error.Wrap(n.h.Close())
}

// inbound

func (n *Libp2pNet) handleBatches(ctx context.Context) {
	defer n.wg.Done()
	for {
		msg, err := n.sub.Next(ctx)
		if err != nil {
			return
		}
		var w BatchWire
		if err := gobDecode(msg.Data, &w); err != nil {
			n.log.Debugw("bad_batch", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}
		batch := make([]*events.Event, len(w.Events))
		for i := range w.Events {
			batch[i] = &w.Events[i]
		}

		n.muH.RLock()
		h := n.handler
		n.muH.RUnlock()
		if h != nil {
			h(ctx, msg.ReceivedFrom, batch)
		}
	}
}
