package config

import (
	"fmt"
	"net/url"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != "mainnet" && cfg.Network != "testnet" {
		return fmt.Errorf("network must be %q or %q", "mainnet", "testnet")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir must not be empty")
	}
	if cfg.Backend.URL != "" {
		u, err := url.Parse(cfg.Backend.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backend.url %q is not an absolute URL", cfg.Backend.URL)
		}
	}
	if cfg.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	switch ImplementationID(cfg.Wallet.Implementation) {
	case ImplByron, ImplShelley, ImplShelley24:
	default:
		return fmt.Errorf("wallet.implementation %q is not supported", cfg.Wallet.Implementation)
	}
	if cfg.Wallet.KDFMemory != 0 && cfg.Wallet.KDFMemory < 8 {
		return fmt.Errorf("wallet.kdf_memory must be at least 8 KiB")
	}
	switch cfg.Log.Level {
	case "", "trace", "debug", "info", "warn", "error", "off", "disabled":
	default:
		return fmt.Errorf("log.level %q is not supported", cfg.Log.Level)
	}
	return nil
}

// ValidateNetwork checks a network parameter set for internal consistency.
func ValidateNetwork(n Network) error {
	if len(n.Eras) == 0 {
		return fmt.Errorf("network %s: empty era schedule", n.Name)
	}
	for i := 1; i < len(n.Eras); i++ {
		if n.Eras[i].StartEpoch <= n.Eras[i-1].StartEpoch {
			return fmt.Errorf("network %s: era %d does not start after era %d", n.Name, i, i-1)
		}
	}
	if n.LinearFee.Coefficient == 0 && n.LinearFee.Constant == 0 {
		return fmt.Errorf("network %s: zero fee model", n.Name)
	}
	if n.Backend.FetchUTXOsMaxAddresses <= 0 || n.Backend.TxHistoryMaxAddresses <= 0 ||
		n.Backend.FilterUsedMaxAddresses <= 0 || n.Backend.TxHistoryResponseLimit <= 0 {
		return fmt.Errorf("network %s: backend address limits must be positive", n.Name)
	}
	if n.ChainNetworkTag > 0x0f {
		return fmt.Errorf("network %s: chain network tag %d out of range", n.Name, n.ChainNetworkTag)
	}
	return nil
}
