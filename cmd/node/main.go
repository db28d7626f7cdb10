package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/hyperescrow/params"
	"github.com/uhyunpark/hyperescrow/pkg/api"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/account"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
	"github.com/uhyunpark/hyperescrow/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperescrow/pkg/app/ledger"
	"github.com/uhyunpark/hyperescrow/pkg/broker"
	"github.com/uhyunpark/hyperescrow/pkg/p2p"
	"github.com/uhyunpark/hyperescrow/pkg/relay"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
	"github.com/uhyunpark/hyperescrow/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (console, plus file when LOG_FILE is set)
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	} else {
		logger, err = util.NewLogger(cfg.Node.LogLevel)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		sugar.Fatalw("node_failed", "err", err)
	}
	sugar.Info("node_stopped")
}

func run(ctx context.Context, cfg params.Config, logger *zap.Logger) (err error) {
	sugar := logger.Sugar()

	// ---- Storage ----
	var store *storage.PebbleStore
	if cfg.Node.DataDir == "" {
		store, err = storage.OpenInMemory()
		sugar.Warn("data_dir_empty - state will not survive restart")
	} else {
		store, err = storage.Open(cfg.Node.DataDir)
	}
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, store.Close()) }()

	// ---- Ledger ----
	custody := ledger.CustodyOf(cfg.Ledger)
	bank := account.NewBank(store, custody)
	l, err := ledger.New(cfg.Ledger, store, bank, util.RealClock{}, logger.Named("ledger"))
	if err != nil {
		return err
	}
	verifier := transaction.NewVerifier(ledger.Domain(cfg.Ledger))
	dispatcher := ledger.NewDispatcher(l, bank, verifier, logger.Named("dispatch"))

	sugar.Infow("node_starting",
		"data_dir", cfg.Node.DataDir,
		"admin", cfg.Ledger.Admin.Hex(),
		"custody", custody.Hex(),
		"reference_asset", cfg.Ledger.ReferenceAsset.Hex(),
		"fee", cfg.Ledger.FeeNumerator,
		"precision", cfg.Ledger.FeePrecision,
		"max_duration", cfg.Ledger.MaxOrderDuration,
		"relay_sink", cfg.Relay.Sink,
	)

	pub, err := newPublisher(ctx, cfg.Relay, logger)
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)

	// ---- API Server ----
	apiServer := api.NewServer(api.Config{
		ChainID:        cfg.Ledger.ChainID,
		EnableFaucet:   cfg.Node.EnableFaucet,
		AllowedOrigins: cfg.Node.AllowedOrigins,
	}, l, bank, dispatcher, logger.Named("api"))
	group.Go(func() error {
		return apiServer.Run(gctx, cfg.Node.APIAddr)
	})

	// ---- Event relay ----
	if pub != nil {
		r := relay.New(cfg.Relay.Sink, l, store, pub, relay.Config{
			Interval:  cfg.Relay.Interval,
			BatchSize: cfg.Relay.BatchSize,
		}, logger.Named("relay"))
		group.Go(func() error {
			return r.Run(gctx)
		})
	}

	return group.Wait()
}

// newPublisher builds the configured relay sink, or nil for "none".
func newPublisher(ctx context.Context, cfg params.Relay, logger *zap.Logger) (relay.Publisher, error) {
	switch cfg.Sink {
	case "file":
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, err
		}
		return relay.NewFilePublisher(cfg.File)
	case "kafka":
		return broker.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "sarama":
		return broker.NewSaramaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case "p2p":
		net, err := p2p.NewLibp2pNet(ctx, p2p.Libp2pConfig{
			ListenAddr: cfg.P2PListen,
			Bootstrap:  cfg.P2PBootstrap,
			Topic:      cfg.P2PTopic,
			Logger:     logger.Named("p2p"),
		})
		if err != nil {
			return nil, err
		}
		self := net.Host().ID()
		sugar := logger.Sugar()
		net.SetHandler(func(_ context.Context, from peer.ID, batch []*events.Event) {
			if from == self || len(batch) == 0 {
				return
			}
			sugar.Infow("peer_events", "from", from.String(), "count", len(batch),
				"first_seq", batch[0].Seq, "last_seq", batch[len(batch)-1].Seq)
		})
		return net, nil
	default:
		return nil, nil
	}
}
