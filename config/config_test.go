package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"bad network", func(c *Config) { c.Network = "devnet" }, true},
		{"empty datadir", func(c *Config) { c.DataDir = "" }, true},
		{"relative url", func(c *Config) { c.Backend.URL = "api/v2" }, true},
		{"absolute url", func(c *Config) { c.Backend.URL = "https://example.org/api" }, false},
		{"bad impl", func(c *Config) { c.Wallet.Implementation = "jormungandr" }, true},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, true},
	}
	for _, tt := range tests {
		cfg := DefaultMainnet()
		tt.mutate(cfg)
		err := Validate(cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "klingwallet.yaml")
	content := "network: testnet\ndatadir: " + dir + "\nlog:\n  level: debug\nbackend:\n  timeout: 5s\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("KLINGWALLET_LOG_JSON", "true")

	cfg, err := Load(NewViper("mainnet"), path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Network != "testnet" {
		t.Errorf("Network = %q, want testnet", cfg.Network)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if !cfg.Log.JSON {
		t.Error("Log.JSON env override not applied")
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("Backend.Timeout = %v, want 5s", cfg.Backend.Timeout)
	}
	if cfg.Wallet.Implementation != string(ImplShelley) {
		t.Errorf("Wallet.Implementation = %q, want default", cfg.Wallet.Implementation)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(NewViper("testnet"), filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Network != "testnet" {
		t.Errorf("Network = %q, want testnet", cfg.Network)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	n, err := r.Network(ShelleyMainnet)
	if err != nil {
		t.Fatalf("Network() error: %v", err)
	}
	if !n.IsMainnet || n.ChainNetworkTag != 1 {
		t.Errorf("mainnet params = %+v", n)
	}
	if _, err := r.Network(ByronMainnet); err == nil {
		t.Error("legacy network id should not resolve directly")
	}
	if to, ok := r.Alias(ByronMainnet); !ok || to != ShelleyMainnet {
		t.Errorf("Alias(ByronMainnet) = %d,%v", to, ok)
	}
	if _, err := r.Implementation("nope"); err == nil {
		t.Error("unknown implementation resolved")
	}
	for _, n := range []Network{MainnetParams(), TestnetParams()} {
		if err := ValidateNetwork(n); err != nil {
			t.Errorf("ValidateNetwork(%s) = %v", n.Name, err)
		}
	}
}

func TestLinearFee(t *testing.T) {
	f := LinearFee{Coefficient: 44, Constant: 155381}
	if got := f.Fee(200); got != 44*200+155381 {
		t.Errorf("Fee(200) = %d", got)
	}
}
