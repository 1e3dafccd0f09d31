package config

import "time"

// DefaultMainnet returns the default application configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: "mainnet",
		DataDir: DefaultDataDir(),
		Backend: BackendConfig{
			Timeout: 30 * time.Second,
		},
		Wallet: WalletConfig{
			Implementation: string(ImplShelley),
			KDFMemory:      64 * 1024,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultTestnet returns the default application configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = "testnet"
	return cfg
}

// Default returns the default configuration for the named network.
func Default(network string) *Config {
	if network == "testnet" {
		return DefaultTestnet()
	}
	return DefaultMainnet()
}
