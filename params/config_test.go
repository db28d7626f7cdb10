package params

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ADMIN_ADDRESS", "0x00000000000000000000000000000000000000a1")
	t.Setenv("GENESIS_ASSETS", "USDC=0x00000000000000000000000000000000000000c1, WBTC=0x00000000000000000000000000000000000000b7")
	t.Setenv("MAX_ORDER_DURATION_SEC", "86400")
	t.Setenv("FEE_NUMERATOR", "5")
	t.Setenv("RELAY_INTERVAL_MS", "250")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CHAIN_ID", "not-a-number")
	t.Setenv("API_ALLOWED_ORIGINS", "https://app.example, https://admin.example")

	cfg := LoadFromEnv("/nonexistent/.env")

	if cfg.Ledger.Admin != common.HexToAddress("0xa1") {
		t.Errorf("Admin = %s", cfg.Ledger.Admin.Hex())
	}
	if len(cfg.Ledger.GenesisAssets) != 2 || cfg.Ledger.GenesisAssets[1].Symbol != "WBTC" {
		t.Errorf("GenesisAssets = %+v", cfg.Ledger.GenesisAssets)
	}
	if cfg.Ledger.MaxOrderDuration != 86400 {
		t.Errorf("MaxOrderDuration = %d", cfg.Ledger.MaxOrderDuration)
	}
	if cfg.Ledger.FeeNumerator != 5 || cfg.Ledger.FeePrecision != 100 {
		t.Errorf("fee rate = %d/%d", cfg.Ledger.FeeNumerator, cfg.Ledger.FeePrecision)
	}
	if cfg.Relay.Interval != 250*time.Millisecond {
		t.Errorf("Relay.Interval = %v", cfg.Relay.Interval)
	}
	if len(cfg.Relay.KafkaBrokers) != 2 {
		t.Errorf("KafkaBrokers = %v", cfg.Relay.KafkaBrokers)
	}
	if len(cfg.Node.AllowedOrigins) != 2 || cfg.Node.AllowedOrigins[1] != "https://admin.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Node.AllowedOrigins)
	}
	// Unparseable values keep the default.
	if cfg.Ledger.ChainID != 1337 {
		t.Errorf("ChainID = %d, want default 1337", cfg.Ledger.ChainID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero admin", func(c *Config) { c.Ledger.Admin = common.Address{} }, true},
		{"zero precision", func(c *Config) { c.Ledger.FeePrecision = 0 }, true},
		{"fee above 100%", func(c *Config) { c.Ledger.FeeNumerator = 101 }, true},
		{"zero max duration", func(c *Config) { c.Ledger.MaxOrderDuration = 0 }, true},
		{"kafka without brokers", func(c *Config) { c.Relay.Sink = "kafka" }, true},
		{"unknown sink", func(c *Config) { c.Relay.Sink = "nats" }, true},
		{"p2p sink", func(c *Config) { c.Relay.Sink = "p2p" }, false},
		{"file sink without path", func(c *Config) { c.Relay.Sink = "file"; c.Relay.File = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseGenesisAssets(t *testing.T) {
	if _, err := ParseGenesisAssets("USDC"); err == nil {
		t.Error("expected error for missing address")
	}
	if _, err := ParseGenesisAssets("USDC=0xnothex"); err == nil {
		t.Error("expected error for bad address")
	}
	got, err := ParseGenesisAssets("A=0x0000000000000000000000000000000000000001")
	if err != nil || len(got) != 1 || got[0].Symbol != "A" {
		t.Errorf("ParseGenesisAssets = %+v, %v", got, err)
	}
}
