package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// GenesisAsset is an asset whitelisted when the ledger is first created.
type GenesisAsset struct {
	Symbol  string
	Address common.Address
}

type Ledger struct {
	// Admin gates asset registration and fee withdrawal. Fixed for the
	// lifetime of the data directory.
	Admin common.Address
	// Custody is the bank account that holds escrowed assets and fees.
	// Zero selects the ledger's built-in custody address.
	Custody common.Address
	// ReferenceAsset is the currency order prices are denominated in.
	ReferenceAsset common.Address
	GenesisAssets  []GenesisAsset

	// Fee rate = FeeNumerator / FeePrecision, charged on both legs of a fill.
	FeeNumerator uint64
	FeePrecision uint64

	// MaxOrderDuration bounds durationFromNow on create and amend (seconds).
	MaxOrderDuration uint64

	// AmountDecimals is only used to render amounts for humans.
	AmountDecimals int32

	// ChainID goes into the EIP-712 domain of signed actions.
	ChainID int64
}

type Node struct {
	DataDir  string // Pebble directory; empty = in-memory store
	APIAddr  string
	LogFile  string // empty = stdout only
	LogLevel string
	// EnableFaucet exposes POST /api/v1/faucet. Devnet only.
	EnableFaucet bool
	// AllowedOrigins are the browser origins the API answers CORS requests for.
	AllowedOrigins []string
}

// Relay publishes the committed event log to an external sink.
type Relay struct {
	Sink         string // none | file | kafka | sarama | p2p
	File         string // JSON-lines event log for the file sink
	Interval     time.Duration
	BatchSize    int
	KafkaBrokers []string
	KafkaTopic   string
	P2PListen    string
	P2PBootstrap []string
	P2PTopic     string
}

type Config struct {
	Ledger Ledger
	Node   Node
	Relay  Relay
}

// Devnet addresses used when nothing is configured.
var (
	DevAdmin = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	DevUSDC  = common.HexToAddress("0x000000000000000000000000000000000000a0c1")
	DevWETH  = common.HexToAddress("0x000000000000000000000000000000000000e7e1")
)

func Default() Config {
	return Config{
		Ledger: Ledger{
			Admin:          DevAdmin,
			ReferenceAsset: DevUSDC,
			GenesisAssets: []GenesisAsset{
				{Symbol: "USDC", Address: DevUSDC},
				{Symbol: "WETH", Address: DevWETH},
			},
			FeeNumerator:     2,
			FeePrecision:     100,
			MaxOrderDuration: 60,
			AmountDecimals:   18,
			ChainID:          1337,
		},
		Node: Node{
			DataDir:        "data/ledger",
			APIAddr:        ":8080",
			LogLevel:       "info",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Relay: Relay{
			Sink:       "none",
			Interval:   500 * time.Millisecond,
			BatchSize:  256,
			File:       "data/events.log",
			KafkaTopic: "escrow-events",
			P2PListen:  "/ip4/0.0.0.0/tcp/9000",
			P2PTopic:   "escrow-events",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	// Ledger
	if addr, ok := envAddress("ADMIN_ADDRESS"); ok {
		cfg.Ledger.Admin = addr
	}
	if addr, ok := envAddress("CUSTODY_ADDRESS"); ok {
		cfg.Ledger.Custody = addr
	}
	if addr, ok := envAddress("REFERENCE_ASSET"); ok {
		cfg.Ledger.ReferenceAsset = addr
	}
	if assets := os.Getenv("GENESIS_ASSETS"); assets != "" {
		// Example: "USDC=0xa0b8...,WETH=0xc02a..."
		if parsed, err := ParseGenesisAssets(assets); err == nil {
			cfg.Ledger.GenesisAssets = parsed
		}
	}
	if v, ok := envUint("FEE_NUMERATOR"); ok {
		cfg.Ledger.FeeNumerator = v
	}
	if v, ok := envUint("FEE_PRECISION"); ok {
		cfg.Ledger.FeePrecision = v
	}
	if v, ok := envUint("MAX_ORDER_DURATION_SEC"); ok {
		cfg.Ledger.MaxOrderDuration = v
	}
	if v, ok := envUint("AMOUNT_DECIMALS"); ok {
		cfg.Ledger.AmountDecimals = int32(v)
	}
	if v, ok := envUint("CHAIN_ID"); ok {
		cfg.Ledger.ChainID = int64(v)
	}

	// Node
	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	if faucet := os.Getenv("ENABLE_FAUCET"); faucet != "" {
		cfg.Node.EnableFaucet = faucet == "true"
	}
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.Node.AllowedOrigins = splitList(origins)
	}

	// Relay
	cfg.Relay.Sink = getEnv("RELAY_SINK", cfg.Relay.Sink)
	if v, ok := envUint("RELAY_INTERVAL_MS"); ok {
		cfg.Relay.Interval = time.Duration(v) * time.Millisecond
	}
	if v, ok := envUint("RELAY_BATCH_SIZE"); ok {
		cfg.Relay.BatchSize = int(v)
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Relay.KafkaBrokers = splitList(brokers)
	}
	cfg.Relay.File = getEnv("RELAY_FILE", cfg.Relay.File)
	cfg.Relay.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Relay.KafkaTopic)
	cfg.Relay.P2PListen = getEnv("P2P_LISTEN", cfg.Relay.P2PListen)
	if peers := os.Getenv("P2P_BOOTSTRAP"); peers != "" {
		cfg.Relay.P2PBootstrap = splitList(peers)
	}
	cfg.Relay.P2PTopic = getEnv("P2P_TOPIC", cfg.Relay.P2PTopic)

	return cfg
}

// Validate rejects configurations the ledger cannot run with.
func (c Config) Validate() error {
	l := c.Ledger
	if l.Admin == (common.Address{}) {
		return fmt.Errorf("admin address must be set")
	}
	if l.ReferenceAsset == (common.Address{}) {
		return fmt.Errorf("reference asset must be set")
	}
	if l.FeePrecision == 0 {
		return fmt.Errorf("fee precision must be positive")
	}
	if l.FeeNumerator > l.FeePrecision {
		return fmt.Errorf("fee numerator %d exceeds precision %d", l.FeeNumerator, l.FeePrecision)
	}
	if l.MaxOrderDuration == 0 {
		return fmt.Errorf("max order duration must be positive")
	}
	switch c.Relay.Sink {
	case "none", "":
	case "file":
		if c.Relay.File == "" {
			return fmt.Errorf("relay sink file needs RELAY_FILE")
		}
	case "kafka", "sarama":
		if len(c.Relay.KafkaBrokers) == 0 {
			return fmt.Errorf("relay sink %s needs KAFKA_BROKERS", c.Relay.Sink)
		}
	case "p2p":
	default:
		return fmt.Errorf("unknown relay sink %q", c.Relay.Sink)
	}
	return nil
}

// ParseGenesisAssets parses "SYMBOL=0xaddr,SYMBOL=0xaddr".
func ParseGenesisAssets(s string) ([]GenesisAsset, error) {
	var out []GenesisAsset
	for _, item := range splitList(s) {
		symbol, addr, ok := strings.Cut(item, "=")
		if !ok || symbol == "" {
			return nil, fmt.Errorf("invalid genesis asset %q (want SYMBOL=0xaddr)", item)
		}
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid address for %s: %q", symbol, addr)
		}
		out = append(out, GenesisAsset{Symbol: symbol, Address: common.HexToAddress(addr)})
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envAddress(key string) (common.Address, bool) {
	v := os.Getenv(key)
	if !common.IsHexAddress(v) {
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func envUint(key string) (uint64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
